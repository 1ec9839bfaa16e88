// Package refresh runs the periodic re-review sweep: completed work items
// whose next refresh date has elapsed are moved to DueForRefresh so they
// re-enter the queue.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"casework/internal/work/models"
	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
	"casework/pkg/requestcontext"
)

// Service is the slice of the work queue service the sweeper drives.
type Service interface {
	ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.WorkItem, error)
	MarkForRefresh(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error)
}

type Sweeper struct {
	service  Service
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func New(service Service, opts ...Option) *Sweeper {
	s := &Sweeper{
		service:  service,
		interval: time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep marks every elapsed item in one pass. Transitions run as the
// system actor; a concurrency conflict means a human got there first and is
// not an error worth more than a debug line.
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx = requestcontext.WithActor(ctx, "system", "refresh sweeper")
	now := requestcontext.Now(ctx)

	items, err := s.service.ListDueForRefresh(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh sweep failed to list due items", "error", err.Error())
		return
	}
	for _, item := range items {
		if _, err := s.service.MarkForRefresh(ctx, item.ID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConcurrencyConflict) || dErrors.HasCode(err, dErrors.CodeInvalidState) {
				s.logger.DebugContext(ctx, "refresh sweep skipped item",
					"work_item_id", item.ID.String(),
					"error", err.Error(),
				)
				continue
			}
			s.logger.ErrorContext(ctx, "refresh sweep failed to mark item",
				"work_item_id", item.ID.String(),
				"error", err.Error(),
			)
			continue
		}
		s.logger.InfoContext(ctx, "work item due for refresh",
			"work_item_id", item.ID.String(),
			"refresh_count", item.RefreshCount,
		)
	}
}
