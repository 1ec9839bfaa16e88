package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
)

var (
	testTime   = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testPolicy = SchedulePolicy{
		ReviewSLA: map[domain.RiskLevel]time.Duration{
			domain.RiskLevelHigh:       3 * 24 * time.Hour,
			domain.RiskLevelMediumHigh: 5 * 24 * time.Hour,
			domain.RiskLevelMedium:     7 * 24 * time.Hour,
			domain.RiskLevelMediumLow:  7 * 24 * time.Hour,
			domain.RiskLevelLow:        14 * 24 * time.Hour,
		},
		RefreshIntervals: map[domain.RiskLevel]time.Duration{
			domain.RiskLevelHigh:       90 * 24 * time.Hour,
			domain.RiskLevelMediumHigh: 180 * 24 * time.Hour,
			domain.RiskLevelMedium:     365 * 24 * time.Hour,
			domain.RiskLevelMediumLow:  365 * 24 * time.Hour,
			domain.RiskLevelLow:        730 * 24 * time.Hour,
		},
	}
)

func newTestItem(t *testing.T, level domain.RiskLevel) *WorkItem {
	t.Helper()
	w, err := NewWorkItem(domain.NewWorkItemID(), "C-100", "WI-2025-000001", level, testPolicy, "system", testTime)
	require.NoError(t, err)
	return w
}

// itemInReview drives a fresh item to InReview with alice assigned.
func itemInReview(t *testing.T, level domain.RiskLevel) *WorkItem {
	t.Helper()
	w := newTestItem(t, level)
	require.NoError(t, w.Assign("alice", "Alice", "lead", testTime))
	require.NoError(t, w.StartReview("alice", testTime))
	return w
}

func TestNewWorkItem(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelHigh)
	assert.Equal(t, StatusNew, w.Status)
	assert.Equal(t, PriorityHigh, w.Priority)
	assert.True(t, w.RequiresApproval)
	assert.Equal(t, testTime.Add(3*24*time.Hour), w.DueDate)
	assert.Equal(t, 1, w.Version)
	require.Len(t, w.History, 1)
	assert.Equal(t, "created", w.History[0].Action)

	low := newTestItem(t, domain.RiskLevelLow)
	assert.Equal(t, PriorityLow, low.Priority)
	assert.False(t, low.RequiresApproval)
	assert.Equal(t, testTime.Add(14*24*time.Hour), low.DueDate)

	_, err := NewWorkItem(domain.NewWorkItemID(), "", "WI-2025-000002", domain.RiskLevelLow, testPolicy, "system", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAssignTransitions(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelMedium)

	require.NoError(t, w.Assign("alice", "Alice", "lead", testTime))
	assert.Equal(t, StatusAssigned, w.Status)
	assert.Equal(t, "alice", w.AssignedTo)

	// Reassignment while still assigned is fine.
	require.NoError(t, w.Assign("bob", "Bob", "lead", testTime))
	assert.Equal(t, "bob", w.AssignedTo)

	require.NoError(t, w.StartReview("bob", testTime))
	err := w.Assign("carol", "Carol", "lead", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	err = w.Assign("", "", "lead", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestUnassign(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelMedium)

	err := w.Unassign("lead", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	require.NoError(t, w.Assign("alice", "Alice", "lead", testTime))
	require.NoError(t, w.Unassign("lead", testTime))
	assert.Equal(t, StatusNew, w.Status)
	assert.Empty(t, w.AssignedTo)
	assert.Nil(t, w.AssignedAt)
}

func TestStartReviewRecordsReviewer(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelMedium)
	require.NoError(t, w.Assign("alice", "Alice", "lead", testTime))
	require.NoError(t, w.StartReview("alice", testTime))
	assert.Equal(t, StatusInReview, w.Status)
	assert.Equal(t, "alice", w.LastReviewedBy)

	fresh := newTestItem(t, domain.RiskLevelMedium)
	err := fresh.StartReview("alice", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestApprovalFlow(t *testing.T) {
	t.Run("approver must differ from reviewer", func(t *testing.T) {
		w := itemInReview(t, domain.RiskLevelHigh)
		require.NoError(t, w.SubmitForApproval("alice", "looks clean", testTime))

		err := w.Approve("alice", "", testPolicy, testTime)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("approver must differ from assignee", func(t *testing.T) {
		w := itemInReview(t, domain.RiskLevelHigh)
		// A second reviewer submits, but the assignee still may not approve.
		require.NoError(t, w.SubmitForApproval("bob", "", testTime))

		err := w.Approve("alice", "", testPolicy, testTime)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("distinct approver completes the item", func(t *testing.T) {
		w := itemInReview(t, domain.RiskLevelHigh)
		require.NoError(t, w.SubmitForApproval("alice", "", testTime))
		require.NoError(t, w.Approve("carol", "second pair of eyes", testPolicy, testTime))

		assert.Equal(t, StatusCompleted, w.Status)
		assert.Equal(t, "carol", w.ApprovedBy)
		require.NotNil(t, w.ApprovedAt)
		require.NotNil(t, w.NextRefreshDate)
		assert.Equal(t, testTime.Add(90*24*time.Hour), *w.NextRefreshDate)
	})

	t.Run("approve outside pending approval is invalid", func(t *testing.T) {
		w := itemInReview(t, domain.RiskLevelHigh)
		err := w.Approve("carol", "", testPolicy, testTime)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("submission requests approval even for low risk", func(t *testing.T) {
		w := itemInReview(t, domain.RiskLevelLow)
		require.False(t, w.RequiresApproval)
		require.NoError(t, w.SubmitForApproval("alice", "", testTime))
		assert.True(t, w.RequiresApproval)
		require.NoError(t, w.Approve("carol", "", testPolicy, testTime))
		assert.Equal(t, StatusCompleted, w.Status)
	})
}

func TestDecline(t *testing.T) {
	w := itemInReview(t, domain.RiskLevelHigh)
	require.NoError(t, w.SubmitForApproval("alice", "", testTime))

	err := w.Decline("carol", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	require.NoError(t, w.Decline("carol", "unresolvable sanctions hit", testTime))
	assert.Equal(t, StatusDeclined, w.Status)
	assert.Equal(t, "unresolvable sanctions hit", w.RejectionReason)
	assert.True(t, w.Status.IsTerminal())

	err = w.Assign("alice", "Alice", "lead", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestCompleteDirectly(t *testing.T) {
	t.Run("low risk completes without approval", func(t *testing.T) {
		w := itemInReview(t, domain.RiskLevelLow)
		require.NoError(t, w.CompleteDirectly("alice", "", testPolicy, testTime))
		assert.Equal(t, StatusCompleted, w.Status)
		require.NotNil(t, w.NextRefreshDate)
		assert.Equal(t, testTime.Add(730*24*time.Hour), *w.NextRefreshDate)
	})

	t.Run("approval routing blocks direct completion", func(t *testing.T) {
		w := itemInReview(t, domain.RiskLevelHigh)
		err := w.CompleteDirectly("alice", "", testPolicy, testTime)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	})
}

func TestRefreshCycle(t *testing.T) {
	w := itemInReview(t, domain.RiskLevelLow)
	require.NoError(t, w.CompleteDirectly("alice", "", testPolicy, testTime))

	later := testTime.Add(730 * 24 * time.Hour)
	require.NoError(t, w.MarkForRefresh(testPolicy, "system", later))
	assert.Equal(t, StatusDueForRefresh, w.Status)

	require.NoError(t, w.Assign("bob", "Bob", "lead", later))
	assert.Equal(t, StatusAssigned, w.Status)
	assert.Equal(t, 1, w.RefreshCount)
	require.NotNil(t, w.LastRefreshedAt)

	err := w.MarkForRefresh(testPolicy, "system", later)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestRefreshIntervalOrdering(t *testing.T) {
	high := itemInReview(t, domain.RiskLevelHigh)
	require.NoError(t, high.SubmitForApproval("alice", "", testTime))
	require.NoError(t, high.Approve("carol", "", testPolicy, testTime))

	low := itemInReview(t, domain.RiskLevelLow)
	require.NoError(t, low.CompleteDirectly("alice", "", testPolicy, testTime))

	assert.True(t, high.NextRefreshDate.Before(*low.NextRefreshDate),
		"higher risk is due for re-review sooner")
}

func TestComments(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelMedium)
	before := len(w.History)

	require.NoError(t, w.AddComment(uuid.New(), "alice", "Alice", "waiting on documents", testTime))
	assert.Len(t, w.Comments, 1)
	assert.Len(t, w.History, before, "comments never touch history")

	err := w.AddComment(uuid.New(), "alice", "Alice", "", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = w.AddComment(uuid.New(), "", "", "body", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestSetRiskLevel(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelLow)
	require.False(t, w.RequiresApproval)

	require.NoError(t, w.SetRiskLevel(domain.RiskLevelHigh, testTime))
	assert.Equal(t, PriorityHigh, w.Priority)
	assert.True(t, w.RequiresApproval)

	// Approval routing never lowers once raised.
	require.NoError(t, w.SetRiskLevel(domain.RiskLevelLow, testTime))
	assert.True(t, w.RequiresApproval)

	err := w.SetRiskLevel("extreme", testTime)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestIsOverdue(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelHigh)
	assert.False(t, w.IsOverdue(testTime))
	assert.True(t, w.IsOverdue(testTime.Add(4*24*time.Hour)))

	done := itemInReview(t, domain.RiskLevelLow)
	require.NoError(t, done.CompleteDirectly("alice", "", testPolicy, testTime))
	assert.False(t, done.IsOverdue(testTime.Add(100*24*time.Hour)))
}

func TestEveryTransitionAppendsOneHistoryEntry(t *testing.T) {
	w := newTestItem(t, domain.RiskLevelHigh)
	steps := []struct {
		action string
		status Status
		do     func() error
	}{
		{"assigned", StatusAssigned, func() error { return w.Assign("alice", "Alice", "lead", testTime) }},
		{"unassigned", StatusNew, func() error { return w.Unassign("lead", testTime) }},
		{"assigned", StatusAssigned, func() error { return w.Assign("alice", "Alice", "lead", testTime) }},
		{"review_started", StatusInReview, func() error { return w.StartReview("alice", testTime) }},
		{"submitted_for_approval", StatusPendingApproval, func() error { return w.SubmitForApproval("alice", "", testTime) }},
		{"approved", StatusCompleted, func() error { return w.Approve("carol", "", testPolicy, testTime) }},
		{"due_for_refresh", StatusDueForRefresh, func() error { return w.MarkForRefresh(testPolicy, "system", testTime) }},
	}
	for i, step := range steps {
		require.NoError(t, step.do(), "step %d (%s)", i, step.action)
		require.Len(t, w.History, i+2)
		entry := w.History[len(w.History)-1]
		assert.Equal(t, step.action, entry.Action)
		assert.Equal(t, step.status, entry.Status)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusDeclined.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal(), "completed items re-enter via refresh")

	for _, st := range []Status{StatusNew, StatusAssigned, StatusInReview, StatusPendingApproval, StatusDueForRefresh} {
		assert.False(t, st.IsTerminal(), string(st))
		assert.True(t, st.IsActive(), string(st))
	}
	assert.False(t, StatusCompleted.IsActive())
	assert.False(t, StatusDeclined.IsActive())
}
