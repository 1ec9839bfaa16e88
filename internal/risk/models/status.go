package models

// Status is the lifecycle state of a RiskAssessment.
//
// Transitions: Draft → InProgress (implicit on first factor add) →
// {Completed | Rejected}. Completed and Rejected are terminal; no transition
// leaves them.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

var validStatuses = map[Status]bool{
	StatusDraft:      true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusRejected:   true,
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}
