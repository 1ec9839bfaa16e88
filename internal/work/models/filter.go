package models

import "time"

// ListFilter narrows work item queries. Zero values mean "no constraint".
// Overdue is evaluated against Now at query time, never stored.
type ListFilter struct {
	Status      Status
	AssignedTo  string
	OverdueOnly bool
	Now         time.Time
	Limit       int
}

// Matches applies the filter to one item. Shared by the memory store and
// tests; the postgres store compiles the same predicate into SQL.
func (f ListFilter) Matches(w *WorkItem) bool {
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && w.AssignedTo != f.AssignedTo {
		return false
	}
	if f.OverdueOnly && !w.IsOverdue(f.Now) {
		return false
	}
	return true
}
