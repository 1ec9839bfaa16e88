// Package service implements the work queue engine commands. Every command
// runs as one short-lived transaction: the aggregate write, its history
// entry, and the outbox rows for any raised events commit together or not
// at all.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"casework/internal/outbox"
	"casework/internal/platform/metrics"
	"casework/internal/work/models"
	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
	"casework/pkg/platform/sentinel"
	"casework/pkg/requestcontext"
)

// Store persists work items. Implementations return sentinel errors for
// infrastructure facts; the service translates them into domain errors.
type Store interface {
	Create(ctx context.Context, item *models.WorkItem) error
	Get(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error)
	GetByApplication(ctx context.Context, applicationID domain.CaseID) (*models.WorkItem, error)
	// Update writes the aggregate guarded by its loaded version and bumps it
	// on success. A stale version yields sentinel.ErrVersionMismatch.
	Update(ctx context.Context, item *models.WorkItem) error
	List(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error)
	// ListDueForRefresh returns completed items whose next refresh date has
	// elapsed at now.
	ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.WorkItem, error)
	// NextSequence allocates the next value of the work item numbering
	// sequence.
	NextSequence(ctx context.Context) (int64, error)
}

// OutboxAppender writes event rows into the command's transaction.
type OutboxAppender interface {
	Append(ctx context.Context, events ...outbox.Event) error
}

// StoreTx runs a function inside one atomic transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates work item commands.
type Service struct {
	store   Store
	outbox  OutboxAppender
	tx      StoreTx
	policy  models.SchedulePolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSchedulePolicy(policy models.SchedulePolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// New constructs a Service.
func New(store Store, ob OutboxAppender, tx StoreTx, opts ...Option) *Service {
	s := &Service{
		store:  store,
		outbox: ob,
		tx:     tx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenForCase creates the work item for a case entering adjudication, or
// mirrors the latest risk level onto the existing one. Called when a risk
// assessment completes.
func (s *Service) OpenForCase(ctx context.Context, applicationID domain.CaseID, riskLevel domain.RiskLevel) (*models.WorkItem, error) {
	var out *models.WorkItem
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)

		existing, err := s.store.GetByApplication(txCtx, applicationID)
		switch {
		case err == nil:
			if err := existing.SetRiskLevel(riskLevel, now); err != nil {
				return err
			}
			if err := s.store.Update(txCtx, existing); err != nil {
				return translateStoreErr(err)
			}
			out = existing
			return nil
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			return translateStoreErr(err)
		}

		seq, err := s.store.NextSequence(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate work item number")
		}
		number := fmt.Sprintf("WI-%d-%06d", now.Year(), seq)

		item, err := models.NewWorkItem(domain.NewWorkItemID(), applicationID, number, riskLevel, s.policy, requestcontext.Actor(txCtx), now)
		if err != nil {
			return err
		}
		if err := s.store.Create(txCtx, item); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "case already has a work item")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create work item")
		}
		if err := s.appendEvents(txCtx, models.WorkItemCreatedEvent{
			BaseEvent:      models.BaseEvent{WorkItemID: item.ID, ApplicationID: item.ApplicationID, Timestamp: now},
			WorkItemNumber: item.WorkItemNumber,
			RiskLevel:      item.RiskLevel,
			Priority:       item.Priority,
		}); err != nil {
			return err
		}
		out = item
		return nil
	})
	s.record(ctx, "open_for_case", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Assign hands a work item to a reviewer.
func (s *Service) Assign(ctx context.Context, id domain.WorkItemID, userID, userName string) (*models.WorkItem, error) {
	return s.mutate(ctx, "assign", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		now := requestcontext.Now(txCtx)
		performedBy := requestcontext.Actor(txCtx)
		if err := w.Assign(userID, userName, performedBy, now); err != nil {
			return nil, err
		}
		return []outbox.DomainEvent{models.WorkItemAssignedEvent{
			BaseEvent:  models.BaseEvent{WorkItemID: w.ID, ApplicationID: w.ApplicationID, Timestamp: now},
			AssignedTo: userID,
			AssignedBy: performedBy,
		}}, nil
	})
}

// Unassign returns a work item to the queue.
func (s *Service) Unassign(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error) {
	return s.mutate(ctx, "unassign", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, w.Unassign(requestcontext.Actor(txCtx), requestcontext.Now(txCtx))
	})
}

// StartReview moves an assigned item into review.
func (s *Service) StartReview(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error) {
	return s.mutate(ctx, "start_review", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, w.StartReview(requestcontext.Actor(txCtx), requestcontext.Now(txCtx))
	})
}

// SubmitForApproval routes a reviewed item to a second approver.
func (s *Service) SubmitForApproval(ctx context.Context, id domain.WorkItemID, notes string) (*models.WorkItem, error) {
	return s.mutate(ctx, "submit_for_approval", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, w.SubmitForApproval(requestcontext.Actor(txCtx), notes, requestcontext.Now(txCtx))
	})
}

// Approve closes the review cycle. The acting user must differ from the
// reviewer.
func (s *Service) Approve(ctx context.Context, id domain.WorkItemID, notes string) (*models.WorkItem, error) {
	return s.mutate(ctx, "approve", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		now := requestcontext.Now(txCtx)
		approvedBy := requestcontext.Actor(txCtx)
		if err := w.Approve(approvedBy, notes, s.policy, now); err != nil {
			return nil, err
		}
		return []outbox.DomainEvent{models.WorkItemApprovedEvent{
			BaseEvent:  models.BaseEvent{WorkItemID: w.ID, ApplicationID: w.ApplicationID, Timestamp: now},
			ApprovedBy: approvedBy,
		}}, nil
	})
}

// Decline closes the review cycle negatively. A reason is mandatory.
func (s *Service) Decline(ctx context.Context, id domain.WorkItemID, reason string) (*models.WorkItem, error) {
	return s.mutate(ctx, "decline", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		now := requestcontext.Now(txCtx)
		declinedBy := requestcontext.Actor(txCtx)
		if err := w.Decline(declinedBy, reason, now); err != nil {
			return nil, err
		}
		return []outbox.DomainEvent{models.WorkItemDeclinedEvent{
			BaseEvent:  models.BaseEvent{WorkItemID: w.ID, ApplicationID: w.ApplicationID, Timestamp: now},
			DeclinedBy: declinedBy,
			Reason:     reason,
		}}, nil
	})
}

// CompleteDirectly closes an in-review item that does not require a second
// approver.
func (s *Service) CompleteDirectly(ctx context.Context, id domain.WorkItemID, notes string) (*models.WorkItem, error) {
	return s.mutate(ctx, "complete_directly", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, w.CompleteDirectly(requestcontext.Actor(txCtx), notes, s.policy, requestcontext.Now(txCtx))
	})
}

// MarkForRefresh reopens a completed item for periodic re-review.
func (s *Service) MarkForRefresh(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error) {
	return s.mutate(ctx, "mark_for_refresh", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		now := requestcontext.Now(txCtx)
		if err := w.MarkForRefresh(s.policy, requestcontext.Actor(txCtx), now); err != nil {
			return nil, err
		}
		return []outbox.DomainEvent{models.WorkItemDueForRefreshEvent{
			BaseEvent:       models.BaseEvent{WorkItemID: w.ID, ApplicationID: w.ApplicationID, Timestamp: now},
			RefreshCount:    w.RefreshCount,
			NextRefreshDate: *w.NextRefreshDate,
		}}, nil
	})
}

// AddComment appends reviewer commentary. Comments never change status.
func (s *Service) AddComment(ctx context.Context, id domain.WorkItemID, body string) (*models.WorkItem, error) {
	return s.mutate(ctx, "add_comment", id, func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, w.AddComment(
			uuid.New(),
			requestcontext.Actor(txCtx),
			requestcontext.ActorName(txCtx),
			body,
			requestcontext.Now(txCtx),
		)
	})
}

// GetWorkItem loads a work item with its comments and history.
func (s *Service) GetWorkItem(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return w, nil
}

// GetWorkItemByApplication loads the work item adjudicating a case.
func (s *Service) GetWorkItemByApplication(ctx context.Context, applicationID domain.CaseID) (*models.WorkItem, error) {
	w, err := s.store.GetByApplication(ctx, applicationID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return w, nil
}

// ListWorkItems returns the queue filtered by status, assignee, and the
// derived overdue predicate.
func (s *Service) ListWorkItems(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid status filter: "+string(filter.Status))
	}
	if filter.Now.IsZero() {
		filter.Now = requestcontext.Now(ctx)
	}
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return items, nil
}

// ListDueForRefresh returns completed items whose refresh date has elapsed.
func (s *Service) ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.WorkItem, error) {
	items, err := s.store.ListDueForRefresh(ctx, now)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return items, nil
}

// mutate is the shared load-mutate-save-append path for every command
// against an existing work item.
func (s *Service) mutate(ctx context.Context, command string, id domain.WorkItemID, fn func(w *models.WorkItem, txCtx context.Context) ([]outbox.DomainEvent, error)) (*models.WorkItem, error) {
	var out *models.WorkItem
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		w, err := s.store.Get(txCtx, id)
		if err != nil {
			return translateStoreErr(err)
		}
		events, err := fn(w, txCtx)
		if err != nil {
			return err
		}
		if err := s.store.Update(txCtx, w); err != nil {
			return translateStoreErr(err)
		}
		if err := s.appendEvents(txCtx, events...); err != nil {
			return err
		}
		out = w
		return nil
	})
	s.record(ctx, command, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) appendEvents(ctx context.Context, events ...outbox.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]outbox.Event, 0, len(events))
	for _, ev := range events {
		row, err := outbox.NewEvent(ev)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize event")
		}
		rows = append(rows, row)
	}
	if err := s.outbox.Append(ctx, rows...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append outbox rows")
	}
	return nil
}

func (s *Service) record(ctx context.Context, command string, err error) {
	result := "ok"
	if err != nil {
		result = string(dErrors.CodeOf(err))
		s.logger.WarnContext(ctx, "command failed",
			"command", command,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.metrics != nil {
		s.metrics.IncCommand(command, result)
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "work item not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		return dErrors.New(dErrors.CodeConcurrencyConflict, "work item was modified concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "case already has a work item")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "work item store failure")
	}
}
