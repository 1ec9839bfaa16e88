package models

// Status is the work item state machine state.
type Status string

const (
	StatusNew             Status = "new"
	StatusAssigned        Status = "assigned"
	StatusInReview        Status = "in_review"
	StatusPendingApproval Status = "pending_approval"
	StatusCompleted       Status = "completed"
	StatusDeclined        Status = "declined"
	StatusDueForRefresh   Status = "due_for_refresh"
)

// IsTerminal reports whether no further review transitions are possible.
// Completed is not terminal in that sense: it can still move to
// DueForRefresh.
func (s Status) IsTerminal() bool {
	return s == StatusDeclined
}

// IsActive reports whether the item is still in a reviewer's hands. Used by
// the overdue predicate.
func (s Status) IsActive() bool {
	switch s {
	case StatusNew, StatusAssigned, StatusInReview, StatusPendingApproval, StatusDueForRefresh:
		return true
	default:
		return false
	}
}

func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusAssigned, StatusInReview, StatusPendingApproval,
		StatusCompleted, StatusDeclined, StatusDueForRefresh:
		return true
	default:
		return false
	}
}
