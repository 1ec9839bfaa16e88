package models

import (
	"time"

	"github.com/google/uuid"

	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
)

// Comment is reviewer commentary attached to a work item. Comments never
// change status.
type Comment struct {
	ID         uuid.UUID `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryEntry records one state transition. Exactly one entry is appended
// per successful transition, in the same transaction as the state change.
type HistoryEntry struct {
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	PerformedAt time.Time `json:"performed_at"`
	Status      Status    `json:"status"`
}

// SchedulePolicy holds the review SLA and periodic refresh intervals keyed
// by risk level. The numbers are configuration owned by compliance.
type SchedulePolicy struct {
	ReviewSLA        map[domain.RiskLevel]time.Duration
	RefreshIntervals map[domain.RiskLevel]time.Duration
}

// SLAFor returns the review deadline interval for a risk level.
func (p SchedulePolicy) SLAFor(level domain.RiskLevel) time.Duration {
	if d, ok := p.ReviewSLA[level]; ok && d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

// RefreshIntervalFor returns the periodic re-review interval for a risk
// level. Higher risk refreshes sooner.
func (p SchedulePolicy) RefreshIntervalFor(level domain.RiskLevel) time.Duration {
	if d, ok := p.RefreshIntervals[level]; ok && d > 0 {
		return d
	}
	return 365 * 24 * time.Hour
}

// WorkItem is the aggregate root driving a case through human review.
//
// Invariants:
//   - one work item per application (unique application id in the store)
//   - AssignedTo is set only in assigned-or-later states
//   - every state transition appends exactly one history entry
type WorkItem struct {
	ID               domain.WorkItemID `json:"id"`
	ApplicationID    domain.CaseID     `json:"application_id"`
	WorkItemNumber   string            `json:"work_item_number"`
	Status           Status            `json:"status"`
	Priority         Priority          `json:"priority"`
	RiskLevel        domain.RiskLevel  `json:"risk_level"`
	AssignedTo       string            `json:"assigned_to,omitempty"`
	AssignedToName   string            `json:"assigned_to_name,omitempty"`
	AssignedAt       *time.Time        `json:"assigned_at,omitempty"`
	LastReviewedBy   string            `json:"last_reviewed_by,omitempty"`
	RequiresApproval bool              `json:"requires_approval"`
	ApprovedBy       string            `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	ApprovalNotes    string            `json:"approval_notes,omitempty"`
	RejectionReason  string            `json:"rejection_reason,omitempty"`
	RejectedAt       *time.Time        `json:"rejected_at,omitempty"`
	DueDate          time.Time         `json:"due_date"`
	NextRefreshDate  *time.Time        `json:"next_refresh_date,omitempty"`
	LastRefreshedAt  *time.Time        `json:"last_refreshed_at,omitempty"`
	RefreshCount     int               `json:"refresh_count"`
	Comments         []Comment         `json:"comments"`
	History          []HistoryEntry    `json:"history"`
	Version          int               `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewWorkItem opens a work item for a case entering adjudication. The due
// date follows the SLA for the mirrored risk level, and approval routing is
// pre-set for the higher risk bands.
func NewWorkItem(id domain.WorkItemID, applicationID domain.CaseID, number string, riskLevel domain.RiskLevel, policy SchedulePolicy, createdBy string, now time.Time) (*WorkItem, error) {
	if applicationID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "application id is required")
	}
	if number == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "work item number is required")
	}
	if !riskLevel.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid risk level: "+string(riskLevel))
	}
	w := &WorkItem{
		ID:               id,
		ApplicationID:    applicationID,
		WorkItemNumber:   number,
		Status:           StatusNew,
		Priority:         PriorityForRiskLevel(riskLevel),
		RiskLevel:        riskLevel,
		RequiresApproval: requiresApprovalFor(riskLevel),
		DueDate:          now.Add(policy.SLAFor(riskLevel)),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	w.appendHistory("created", createdBy, now)
	return w, nil
}

// requiresApprovalFor routes the higher risk bands through a second
// approver regardless of reviewer choice.
func requiresApprovalFor(level domain.RiskLevel) bool {
	return level == domain.RiskLevelHigh || level == domain.RiskLevelMediumHigh
}

// Assign hands the item to a reviewer. Allowed from New, Assigned
// (reassignment), and DueForRefresh, where it opens a new review cycle and
// bumps the refresh count.
func (w *WorkItem) Assign(userID, userName, performedBy string, now time.Time) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeValidation, "assignee id is required")
	}
	switch w.Status {
	case StatusNew, StatusAssigned:
	case StatusDueForRefresh:
		w.RefreshCount++
		t := now
		w.LastRefreshedAt = &t
	default:
		return dErrors.New(dErrors.CodeInvalidState, "cannot assign from status "+string(w.Status))
	}
	w.AssignedTo = userID
	w.AssignedToName = userName
	t := now
	w.AssignedAt = &t
	w.transition(StatusAssigned, "assigned", performedBy, now)
	return nil
}

// Unassign returns the item to the queue. Only legal before review starts.
func (w *WorkItem) Unassign(performedBy string, now time.Time) error {
	if w.Status != StatusAssigned {
		return dErrors.New(dErrors.CodeInvalidState, "cannot unassign from status "+string(w.Status))
	}
	w.AssignedTo = ""
	w.AssignedToName = ""
	w.AssignedAt = nil
	w.transition(StatusNew, "unassigned", performedBy, now)
	return nil
}

// StartReview moves an assigned item into review and records the reviewer
// identity for the approval separation check.
func (w *WorkItem) StartReview(performedBy string, now time.Time) error {
	if w.Status != StatusAssigned {
		return dErrors.New(dErrors.CodeInvalidState, "cannot start review from status "+string(w.Status))
	}
	if w.AssignedTo == "" {
		return dErrors.New(dErrors.CodePreconditionFailed, "cannot review an unassigned work item")
	}
	w.LastReviewedBy = performedBy
	w.transition(StatusInReview, "review_started", performedBy, now)
	return nil
}

// SubmitForApproval routes a reviewed item to a second approver. Submitting
// is itself the approval request, so the flag is always set.
func (w *WorkItem) SubmitForApproval(performedBy, notes string, now time.Time) error {
	if w.Status != StatusInReview {
		return dErrors.New(dErrors.CodeInvalidState, "cannot submit for approval from status "+string(w.Status))
	}
	w.RequiresApproval = true
	w.LastReviewedBy = performedBy
	if notes != "" {
		w.ApprovalNotes = notes
	}
	w.transition(StatusPendingApproval, "submitted_for_approval", performedBy, now)
	return nil
}

// Approve closes the review cycle. The approver must differ from both the
// assignee and whoever last reviewed the item (four-eyes rule).
func (w *WorkItem) Approve(approvedBy, notes string, policy SchedulePolicy, now time.Time) error {
	if w.Status != StatusPendingApproval {
		return dErrors.New(dErrors.CodeInvalidState, "cannot approve from status "+string(w.Status))
	}
	if !w.RequiresApproval {
		return dErrors.New(dErrors.CodePreconditionFailed, "work item does not require approval")
	}
	if approvedBy == "" {
		return dErrors.New(dErrors.CodeValidation, "approver identity is required")
	}
	if approvedBy == w.LastReviewedBy || approvedBy == w.AssignedTo {
		return dErrors.New(dErrors.CodeUnauthorized, "approver must differ from the reviewer")
	}
	w.ApprovedBy = approvedBy
	t := now
	w.ApprovedAt = &t
	if notes != "" {
		w.ApprovalNotes = notes
	}
	w.scheduleRefresh(policy, now)
	w.transition(StatusCompleted, "approved", approvedBy, now)
	return nil
}

// Decline closes the review cycle negatively. A reason is mandatory.
func (w *WorkItem) Decline(declinedBy, reason string, now time.Time) error {
	if w.Status != StatusPendingApproval {
		return dErrors.New(dErrors.CodeInvalidState, "cannot decline from status "+string(w.Status))
	}
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "decline requires a reason")
	}
	w.RejectionReason = reason
	t := now
	w.RejectedAt = &t
	w.transition(StatusDeclined, "declined", declinedBy, now)
	return nil
}

// CompleteDirectly closes an in-review item without a second approver.
// Blocked when approval routing applies.
func (w *WorkItem) CompleteDirectly(performedBy, notes string, policy SchedulePolicy, now time.Time) error {
	if w.Status != StatusInReview {
		return dErrors.New(dErrors.CodeInvalidState, "cannot complete from status "+string(w.Status))
	}
	if w.RequiresApproval {
		return dErrors.New(dErrors.CodePreconditionFailed, "work item requires approval")
	}
	if notes != "" {
		w.ApprovalNotes = notes
	}
	w.scheduleRefresh(policy, now)
	w.transition(StatusCompleted, "completed", performedBy, now)
	return nil
}

// MarkForRefresh reopens a completed item for periodic re-review and
// schedules the following refresh cycle.
func (w *WorkItem) MarkForRefresh(policy SchedulePolicy, performedBy string, now time.Time) error {
	if w.Status != StatusCompleted {
		return dErrors.New(dErrors.CodeInvalidState, "cannot mark for refresh from status "+string(w.Status))
	}
	w.scheduleRefresh(policy, now)
	w.transition(StatusDueForRefresh, "due_for_refresh", performedBy, now)
	return nil
}

// AddComment appends commentary without touching status or history.
func (w *WorkItem) AddComment(id uuid.UUID, authorID, authorName, body string, now time.Time) error {
	if body == "" {
		return dErrors.New(dErrors.CodeValidation, "comment body is required")
	}
	if authorID == "" {
		return dErrors.New(dErrors.CodeValidation, "comment author is required")
	}
	w.Comments = append(w.Comments, Comment{
		ID:         id,
		AuthorID:   authorID,
		AuthorName: authorName,
		Body:       body,
		CreatedAt:  now,
	})
	w.UpdatedAt = now
	return nil
}

// SetRiskLevel mirrors the latest assessment level onto the item, adjusting
// priority and approval routing.
func (w *WorkItem) SetRiskLevel(level domain.RiskLevel, now time.Time) error {
	if !level.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid risk level: "+string(level))
	}
	w.RiskLevel = level
	w.Priority = PriorityForRiskLevel(level)
	if requiresApprovalFor(level) {
		w.RequiresApproval = true
	}
	w.UpdatedAt = now
	return nil
}

// IsOverdue is a derived predicate, never stored: an item still in flight
// past its due date.
func (w *WorkItem) IsOverdue(now time.Time) bool {
	return w.Status.IsActive() && now.After(w.DueDate)
}

func (w *WorkItem) scheduleRefresh(policy SchedulePolicy, now time.Time) {
	t := now.Add(policy.RefreshIntervalFor(w.RiskLevel))
	w.NextRefreshDate = &t
}

func (w *WorkItem) transition(to Status, action, performedBy string, now time.Time) {
	w.Status = to
	w.appendHistory(action, performedBy, now)
	w.UpdatedAt = now
}

func (w *WorkItem) appendHistory(action, performedBy string, now time.Time) {
	w.History = append(w.History, HistoryEntry{
		Action:      action,
		PerformedBy: performedBy,
		PerformedAt: now,
		Status:      w.Status,
	})
}
