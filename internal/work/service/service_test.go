package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	outboxMemory "casework/internal/outbox/store/memory"
	"casework/internal/work/models"
	workMemory "casework/internal/work/store/memory"
	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
	"casework/pkg/requestcontext"
)

// =============================================================================
// Work Service Test Suite
// =============================================================================

type WorkServiceSuite struct {
	suite.Suite
	now     time.Time
	store   *workMemory.Store
	outbox  *outboxMemory.Store
	service *Service
}

func TestWorkServiceSuite(t *testing.T) {
	suite.Run(t, new(WorkServiceSuite))
}

var testPolicy = models.SchedulePolicy{
	ReviewSLA: map[domain.RiskLevel]time.Duration{
		domain.RiskLevelHigh: 3 * 24 * time.Hour,
		domain.RiskLevelLow:  14 * 24 * time.Hour,
	},
	RefreshIntervals: map[domain.RiskLevel]time.Duration{
		domain.RiskLevelHigh: 90 * 24 * time.Hour,
		domain.RiskLevelLow:  730 * 24 * time.Hour,
	},
}

func (s *WorkServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.store = workMemory.New()
	s.outbox = outboxMemory.New()
	s.service = New(s.store, s.outbox, NopTx{}, WithSchedulePolicy(testPolicy))
}

// ctxAs builds a request context for the given actor at the suite's fixed
// clock.
func (s *WorkServiceSuite) ctxAs(actorID, actorName string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithActor(ctx, actorID, actorName)
}

func (s *WorkServiceSuite) mustOpen(caseID domain.CaseID, level domain.RiskLevel) *models.WorkItem {
	w, err := s.service.OpenForCase(s.ctxAs("system", "case intake"), caseID, level)
	s.Require().NoError(err)
	return w
}

func (s *WorkServiceSuite) pendingEventTypes() []string {
	var types []string
	for _, e := range s.outbox.All() {
		types = append(types, e.EventType)
	}
	return types
}

// =============================================================================
// OpenForCase
// =============================================================================

func (s *WorkServiceSuite) TestOpenForCase() {
	s.Run("creates the item with a sequential number", func() {
		w := s.mustOpen("C-100", domain.RiskLevelHigh)
		s.Equal(models.StatusNew, w.Status)
		s.Regexp(regexp.MustCompile(`^WI-2025-\d{6}$`), w.WorkItemNumber)
		s.Equal([]string{"work_item.created"}, s.pendingEventTypes())
	})

	s.Run("numbers are monotonic across cases", func() {
		first := s.mustOpen("C-101", domain.RiskLevelLow)
		second := s.mustOpen("C-102", domain.RiskLevelLow)
		s.Less(first.WorkItemNumber, second.WorkItemNumber)
	})

	s.Run("reopening mirrors the new level instead of creating", func() {
		w := s.mustOpen("C-100", domain.RiskLevelMedium)
		s.Equal(domain.RiskLevelMedium, w.RiskLevel)
		s.Equal(models.PriorityMedium, w.Priority)

		items, err := s.service.ListWorkItems(s.ctxAs("lead", "Lead"), models.ListFilter{})
		s.Require().NoError(err)
		s.Len(items, 3, "no duplicate item for C-100")
	})

	s.Run("invalid level is rejected", func() {
		_, err := s.service.OpenForCase(s.ctxAs("system", ""), "C-103", "extreme")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Review lifecycle
// =============================================================================

func (s *WorkServiceSuite) TestFullApprovalLifecycle() {
	w := s.mustOpen("C-200", domain.RiskLevelHigh)

	assigned, err := s.service.Assign(s.ctxAs("lead", "Team Lead"), w.ID, "alice", "Alice")
	s.Require().NoError(err)
	s.Equal(models.StatusAssigned, assigned.Status)
	s.Contains(s.pendingEventTypes(), "work_item.assigned")

	inReview, err := s.service.StartReview(s.ctxAs("alice", "Alice"), w.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInReview, inReview.Status)
	s.Equal("alice", inReview.LastReviewedBy)

	pending, err := s.service.SubmitForApproval(s.ctxAs("alice", "Alice"), w.ID, "all checks clean")
	s.Require().NoError(err)
	s.Equal(models.StatusPendingApproval, pending.Status)

	s.Run("the reviewer cannot approve their own work", func() {
		_, err := s.service.Approve(s.ctxAs("alice", "Alice"), w.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	approved, err := s.service.Approve(s.ctxAs("carol", "Carol"), w.ID, "concur")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, approved.Status)
	s.Equal("carol", approved.ApprovedBy)
	s.Require().NotNil(approved.NextRefreshDate)
	s.Contains(s.pendingEventTypes(), "work_item.approved")
}

func (s *WorkServiceSuite) TestDecline() {
	w := s.mustOpen("C-201", domain.RiskLevelHigh)
	_, err := s.service.Assign(s.ctxAs("lead", "Lead"), w.ID, "alice", "Alice")
	s.Require().NoError(err)
	_, err = s.service.StartReview(s.ctxAs("alice", "Alice"), w.ID)
	s.Require().NoError(err)
	_, err = s.service.SubmitForApproval(s.ctxAs("alice", "Alice"), w.ID, "")
	s.Require().NoError(err)

	declined, err := s.service.Decline(s.ctxAs("carol", "Carol"), w.ID, "beneficial owner unverifiable")
	s.Require().NoError(err)
	s.Equal(models.StatusDeclined, declined.Status)
	s.Contains(s.pendingEventTypes(), "work_item.declined")
}

func (s *WorkServiceSuite) TestCompleteDirectly() {
	w := s.mustOpen("C-202", domain.RiskLevelLow)
	_, err := s.service.Assign(s.ctxAs("lead", "Lead"), w.ID, "alice", "Alice")
	s.Require().NoError(err)
	_, err = s.service.StartReview(s.ctxAs("alice", "Alice"), w.ID)
	s.Require().NoError(err)

	done, err := s.service.CompleteDirectly(s.ctxAs("alice", "Alice"), w.ID, "routine low risk case")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, done.Status)
}

// =============================================================================
// Refresh
// =============================================================================

func (s *WorkServiceSuite) TestRefreshCycle() {
	w := s.mustOpen("C-300", domain.RiskLevelLow)
	_, err := s.service.Assign(s.ctxAs("lead", "Lead"), w.ID, "alice", "Alice")
	s.Require().NoError(err)
	_, err = s.service.StartReview(s.ctxAs("alice", "Alice"), w.ID)
	s.Require().NoError(err)
	done, err := s.service.CompleteDirectly(s.ctxAs("alice", "Alice"), w.ID, "")
	s.Require().NoError(err)

	s.Run("not due before the refresh date", func() {
		due, err := s.service.ListDueForRefresh(context.Background(), s.now)
		s.Require().NoError(err)
		s.Empty(due)
	})

	s.Run("due once the refresh date elapses", func() {
		due, err := s.service.ListDueForRefresh(context.Background(), done.NextRefreshDate.Add(time.Hour))
		s.Require().NoError(err)
		s.Require().Len(due, 1)
		s.Equal(w.ID, due[0].ID)
	})

	s.Run("marking emits the refresh event and reassignment reopens the cycle", func() {
		marked, err := s.service.MarkForRefresh(s.ctxAs("system", "refresh sweeper"), w.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDueForRefresh, marked.Status)
		s.Contains(s.pendingEventTypes(), "work_item.due_for_refresh")

		reassigned, err := s.service.Assign(s.ctxAs("lead", "Lead"), w.ID, "bob", "Bob")
		s.Require().NoError(err)
		s.Equal(models.StatusAssigned, reassigned.Status)
		s.Equal(1, reassigned.RefreshCount)
	})
}

// =============================================================================
// Comments and reads
// =============================================================================

func (s *WorkServiceSuite) TestAddComment() {
	w := s.mustOpen("C-400", domain.RiskLevelMedium)

	updated, err := s.service.AddComment(s.ctxAs("alice", "Alice"), w.ID, "requested updated registry extract")
	s.Require().NoError(err)
	s.Require().Len(updated.Comments, 1)
	s.Equal("alice", updated.Comments[0].AuthorID)
	s.Equal("Alice", updated.Comments[0].AuthorName)
	s.Equal(models.StatusNew, updated.Status)

	_, err = s.service.AddComment(s.ctxAs("alice", "Alice"), w.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WorkServiceSuite) TestReads() {
	w := s.mustOpen("C-500", domain.RiskLevelMedium)

	got, err := s.service.GetWorkItem(context.Background(), w.ID)
	s.Require().NoError(err)
	s.Equal(w.ID, got.ID)

	byApp, err := s.service.GetWorkItemByApplication(context.Background(), "C-500")
	s.Require().NoError(err)
	s.Equal(w.ID, byApp.ID)

	_, err = s.service.GetWorkItem(context.Background(), domain.NewWorkItemID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Listing
// =============================================================================

func (s *WorkServiceSuite) TestListWorkItems() {
	high := s.mustOpen("C-600", domain.RiskLevelHigh)
	low := s.mustOpen("C-601", domain.RiskLevelLow)
	_, err := s.service.Assign(s.ctxAs("lead", "Lead"), high.ID, "alice", "Alice")
	s.Require().NoError(err)

	s.Run("filter by status", func() {
		items, err := s.service.ListWorkItems(context.Background(), models.ListFilter{Status: models.StatusAssigned})
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal(high.ID, items[0].ID)
	})

	s.Run("filter by assignee", func() {
		items, err := s.service.ListWorkItems(context.Background(), models.ListFilter{AssignedTo: "alice"})
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal(high.ID, items[0].ID)
	})

	s.Run("overdue filter honors the SLA", func() {
		afterHighSLA := s.now.Add(4 * 24 * time.Hour)
		items, err := s.service.ListWorkItems(context.Background(), models.ListFilter{OverdueOnly: true, Now: afterHighSLA})
		s.Require().NoError(err)
		s.Require().Len(items, 1, "only the high risk SLA has elapsed")
		s.Equal(high.ID, items[0].ID)
		s.NotEqual(low.ID, items[0].ID)
	})

	s.Run("limit caps the result", func() {
		items, err := s.service.ListWorkItems(context.Background(), models.ListFilter{Limit: 1})
		s.Require().NoError(err)
		s.Len(items, 1)
	})

	s.Run("invalid status filter is rejected", func() {
		_, err := s.service.ListWorkItems(context.Background(), models.ListFilter{Status: "paused"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *WorkServiceSuite) TestStaleWriteConflicts() {
	w := s.mustOpen("C-700", domain.RiskLevelMedium)

	stale, err := s.store.Get(context.Background(), w.ID)
	s.Require().NoError(err)

	_, err = s.service.Assign(s.ctxAs("lead", "Lead"), w.ID, "alice", "Alice")
	s.Require().NoError(err)

	err = s.store.Update(context.Background(), stale)
	s.Error(err, "second writer lost the race")
}
