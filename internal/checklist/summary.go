package checklist

import (
	"time"

	"checklist/api/internal/store"
)

// minutesPerItem drives the template duration estimate.
const minutesPerItem = 2

type TemplateSummary struct {
	Name             string    `json:"name"`
	ItemCount        int       `json:"itemCount"`
	MandatoryCount   int       `json:"mandatoryCount"`
	EstimatedMinutes int       `json:"estimatedMinutes"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func SummarizeTemplate(tpl store.Template) TemplateSummary {
	mandatory := 0
	for _, m := range tpl.Mandatory {
		if m {
			mandatory++
		}
	}
	return TemplateSummary{
		Name:             tpl.Name,
		ItemCount:        len(tpl.Items),
		MandatoryCount:   mandatory,
		EstimatedMinutes: len(tpl.Items) * minutesPerItem,
		UpdatedAt:        tpl.UpdatedAt,
	}
}

// SessionSummary is the listing row handed to views.
type SessionSummary struct {
	ID           string    `json:"id"`
	SessionName  string    `json:"sessionName"`
	TemplateName string    `json:"templateName"`
	Completed    bool      `json:"completed"`
	CreatedAt    time.Time `json:"createdAt"`
	Progress     Progress  `json:"progress"`
}

func SummarizeSession(session store.ChecklistSession) SessionSummary {
	return SessionSummary{
		ID:           session.ID,
		SessionName:  session.SessionName,
		TemplateName: session.TemplateName,
		Completed:    session.Completed,
		CreatedAt:    session.CreatedAt,
		Progress:     ComputeProgress(session),
	}
}
