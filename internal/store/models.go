package store

import "time"

// Template is a reusable, named list of checklist items. Items and Mandatory
// are parallel slices of equal length.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Items     []string  `json:"items"`
	Mandatory []bool    `json:"mandatory"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChecklistSession is one instantiated run of a template. The five per-item
// slices always have the same length; index i in each refers to the same item.
// Version increments on every successful write and backs optimistic
// concurrency in UpdateSession.
type ChecklistSession struct {
	ID           string    `json:"id"`
	SessionName  string    `json:"sessionName"`
	TemplateName string    `json:"templateName"`
	Items        []string  `json:"items"`
	Mandatory    []bool    `json:"mandatory"`
	Checked      []bool    `json:"checked"`
	Comments     []string  `json:"comments"`
	UserNames    []string  `json:"userNames"`
	Completed    bool      `json:"completed"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Len reports the number of items in the session.
func (s ChecklistSession) Len() int {
	return len(s.Items)
}

// Consistent reports whether all per-item slices share the same length.
func (s ChecklistSession) Consistent() bool {
	n := len(s.Items)
	return len(s.Mandatory) == n && len(s.Checked) == n && len(s.Comments) == n && len(s.UserNames) == n
}

// Clone returns a deep copy so callers can mutate it without aliasing the
// original's slices.
func (s ChecklistSession) Clone() ChecklistSession {
	out := s
	out.Items = append([]string(nil), s.Items...)
	out.Mandatory = append([]bool(nil), s.Mandatory...)
	out.Checked = append([]bool(nil), s.Checked...)
	out.Comments = append([]string(nil), s.Comments...)
	out.UserNames = append([]string(nil), s.UserNames...)
	return out
}

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	out := t
	out.Items = append([]string(nil), t.Items...)
	out.Mandatory = append([]bool(nil), t.Mandatory...)
	return out
}
