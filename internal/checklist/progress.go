package checklist

import "checklist/api/internal/store"

// Progress is derived from a session's per-item arrays on every read and is
// never persisted.
type Progress struct {
	Total                 int     `json:"total"`
	CheckedCount          int     `json:"checkedCount"`
	MandatoryCount        int     `json:"mandatoryCount"`
	CheckedMandatoryCount int     `json:"checkedMandatoryCount"`
	Remaining             int     `json:"remaining"`
	OverallRatio          float64 `json:"overallRatio"`
	MandatoryRatio        float64 `json:"mandatoryRatio"`
	IsComplete            bool    `json:"isComplete"`
}

// ComputeProgress derives completion ratios and the mandatory gate. An empty
// session has an overall ratio of 0; a session without mandatory items has a
// mandatory ratio of 1.
func ComputeProgress(session store.ChecklistSession) Progress {
	p := Progress{Total: session.Len()}
	for i := 0; i < p.Total; i++ {
		checked := i < len(session.Checked) && session.Checked[i]
		mandatory := i < len(session.Mandatory) && session.Mandatory[i]
		if checked {
			p.CheckedCount++
		}
		if mandatory {
			p.MandatoryCount++
			if checked {
				p.CheckedMandatoryCount++
			}
		}
	}
	p.Remaining = p.Total - p.CheckedCount

	if p.Total > 0 {
		p.OverallRatio = float64(p.CheckedCount) / float64(p.Total)
	}
	p.MandatoryRatio = 1
	if p.MandatoryCount > 0 {
		p.MandatoryRatio = float64(p.CheckedMandatoryCount) / float64(p.MandatoryCount)
	}
	p.IsComplete = p.OverallRatio == 1 && p.MandatoryRatio == 1
	return p
}

// MandatorySatisfied reports whether every mandatory item is checked.
func (p Progress) MandatorySatisfied() bool {
	return p.CheckedMandatoryCount == p.MandatoryCount
}
