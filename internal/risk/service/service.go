// Package service implements the risk assessment engine commands. Every
// command runs as one short-lived transaction: the aggregate write and the
// outbox rows for any raised events commit together or not at all.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"casework/internal/outbox"
	"casework/internal/platform/metrics"
	"casework/internal/risk/models"
	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
	"casework/pkg/platform/sentinel"
	"casework/pkg/requestcontext"
)

// Store persists assessments. Implementations return sentinel errors for
// infrastructure facts; the service translates them into domain errors.
type Store interface {
	Create(ctx context.Context, assessment *models.RiskAssessment) error
	Get(ctx context.Context, id domain.AssessmentID) (*models.RiskAssessment, error)
	GetByCase(ctx context.Context, caseID domain.CaseID) (*models.RiskAssessment, error)
	// Update writes the aggregate guarded by its loaded version and bumps it
	// on success. A stale version yields sentinel.ErrVersionMismatch.
	Update(ctx context.Context, assessment *models.RiskAssessment) error
}

// OutboxAppender writes event rows into the command's transaction.
type OutboxAppender interface {
	Append(ctx context.Context, events ...outbox.Event) error
}

// StoreTx runs a function inside one atomic transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates assessment commands.
type Service struct {
	store   Store
	outbox  OutboxAppender
	tx      StoreTx
	policy  models.ScoringPolicy
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

func WithScoringPolicy(policy models.ScoringPolicy) Option {
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

// CreateAssessment opens a Draft assessment for a case. Exactly one
// assessment may exist per case.
func (s *Service) CreateAssessment(ctx context.Context, caseID domain.CaseID, partnerID domain.PartnerID) (*models.RiskAssessment, error) {
	var created *models.RiskAssessment
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		a, err := models.NewRiskAssessment(domain.NewAssessmentID(), caseID, partnerID, now)
		if err != nil {
			return err
		}
		if err := s.store.Create(txCtx, a); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "case already has a risk assessment")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create assessment")
		}
		if err := s.appendEvents(txCtx, models.AssessmentCreatedEvent{
			BaseEvent: models.BaseEvent{AssessmentID: a.ID, CaseID: a.CaseID, Timestamp: now},
			PartnerID: a.PartnerID,
		}); err != nil {
			return err
		}
		created = a
		return nil
	})
	s.record(ctx, "create_assessment", err)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddRiskFactor appends a factor and recomputes score and level.
func (s *Service) AddRiskFactor(ctx context.Context, id domain.AssessmentID, factorType, level string, score float64, description, source string) (*models.RiskAssessment, error) {
	parsedType, err := domain.ParseFactorType(factorType)
	if err != nil {
		s.record(ctx, "add_risk_factor", err)
		return nil, err
	}
	parsedLevel, err := domain.ParseFactorLevel(level)
	if err != nil {
		s.record(ctx, "add_risk_factor", err)
		return nil, err
	}
	return s.mutate(ctx, "add_risk_factor", id, func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error) {
		now := requestcontext.Now(txCtx)
		factor, err := models.NewRiskFactor(parsedType, parsedLevel, score, description, source, now)
		if err != nil {
			return nil, err
		}
		if err := a.AddFactor(factor, s.policy, now); err != nil {
			return nil, err
		}
		if a.IsManualOverride {
			s.logger.InfoContext(txCtx, "factor added under manual override; score pinned",
				"assessment_id", a.ID.String(),
				"factor_type", parsedType.String(),
			)
		}
		return nil, nil
	})
}

// UpdateRiskFactor updates an existing factor's mutable fields.
func (s *Service) UpdateRiskFactor(ctx context.Context, id domain.AssessmentID, factorID uuid.UUID, level string, score float64, description string) (*models.RiskAssessment, error) {
	parsedLevel, err := domain.ParseFactorLevel(level)
	if err != nil {
		s.record(ctx, "update_risk_factor", err)
		return nil, err
	}
	return s.mutate(ctx, "update_risk_factor", id, func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, a.UpdateFactor(factorID, parsedLevel, score, description, s.policy, requestcontext.Now(txCtx))
	})
}

// SetManualRiskLevel pins the level to a human judgement with a mandatory
// justification.
func (s *Service) SetManualRiskLevel(ctx context.Context, id domain.AssessmentID, level, justification string) (*models.RiskAssessment, error) {
	parsedLevel, err := domain.ParseRiskLevel(level)
	if err != nil {
		s.record(ctx, "set_manual_risk_level", err)
		return nil, err
	}
	return s.mutate(ctx, "set_manual_risk_level", id, func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, a.SetManualLevel(parsedLevel, justification, requestcontext.Now(txCtx))
	})
}

// ClearManualOverride lifts a manual override and recomputes from factors.
func (s *Service) ClearManualOverride(ctx context.Context, id domain.AssessmentID) (*models.RiskAssessment, error) {
	return s.mutate(ctx, "clear_manual_override", id, func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error) {
		return nil, a.ClearManualOverride(s.policy, requestcontext.Now(txCtx))
	})
}

// CompleteAssessment finalizes the assessment and raises the completion
// event the work queue consumes.
func (s *Service) CompleteAssessment(ctx context.Context, id domain.AssessmentID, notes string) (*models.RiskAssessment, error) {
	return s.mutate(ctx, "complete_assessment", id, func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error) {
		now := requestcontext.Now(txCtx)
		assessedBy := requestcontext.Actor(txCtx)
		if err := a.Complete(assessedBy, notes, now); err != nil {
			return nil, err
		}
		return []outbox.DomainEvent{models.AssessmentCompletedEvent{
			BaseEvent:  models.BaseEvent{AssessmentID: a.ID, CaseID: a.CaseID, Timestamp: now},
			RiskLevel:  a.OverallRiskLevel,
			RiskScore:  a.RiskScore,
			AssessedBy: assessedBy,
		}}, nil
	})
}

// RejectAssessment finalizes the assessment negatively.
func (s *Service) RejectAssessment(ctx context.Context, id domain.AssessmentID, reason string) (*models.RiskAssessment, error) {
	return s.mutate(ctx, "reject_assessment", id, func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error) {
		now := requestcontext.Now(txCtx)
		rejectedBy := requestcontext.Actor(txCtx)
		if err := a.Reject(rejectedBy, reason, now); err != nil {
			return nil, err
		}
		return []outbox.DomainEvent{models.AssessmentRejectedEvent{
			BaseEvent:  models.BaseEvent{AssessmentID: a.ID, CaseID: a.CaseID, Timestamp: now},
			RejectedBy: rejectedBy,
			Reason:     reason,
		}}, nil
	})
}

// UpdateNotes is allowed in any status, terminal included.
func (s *Service) UpdateNotes(ctx context.Context, id domain.AssessmentID, notes string) (*models.RiskAssessment, error) {
	return s.mutate(ctx, "update_notes", id, func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error) {
		a.UpdateNotes(notes, requestcontext.Now(txCtx))
		return nil, nil
	})
}

// GetAssessment loads an assessment with its factors.
func (s *Service) GetAssessment(ctx context.Context, id domain.AssessmentID) (*models.RiskAssessment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return a, nil
}

// GetAssessmentByCase loads the assessment adjudicating a case.
func (s *Service) GetAssessmentByCase(ctx context.Context, caseID domain.CaseID) (*models.RiskAssessment, error) {
	a, err := s.store.GetByCase(ctx, caseID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return a, nil
}

// mutate is the shared load-mutate-save-append path for every command
// against an existing assessment.
func (s *Service) mutate(ctx context.Context, command string, id domain.AssessmentID, fn func(a *models.RiskAssessment, txCtx context.Context) ([]outbox.DomainEvent, error)) (*models.RiskAssessment, error) {
	var out *models.RiskAssessment
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		a, err := s.store.Get(txCtx, id)
		if err != nil {
			return translateStoreErr(err)
		}
		events, err := fn(a, txCtx)
		if err != nil {
			return err
		}
		if err := s.store.Update(txCtx, a); err != nil {
			return translateStoreErr(err)
		}
		if err := s.appendEvents(txCtx, events...); err != nil {
			return err
		}
		out = a
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
		return dErrors.New(dErrors.CodeNotFound, "assessment not found")
	case errors.Is(err, sentinel.ErrVersionMismatch):
		return dErrors.New(dErrors.CodeConcurrencyConflict, "assessment was modified concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "case already has a risk assessment")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "assessment store failure")
	}
}
