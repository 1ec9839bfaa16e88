// Package relay drains committed outbox rows and republishes them to the
// message bus. Publish failures are retried indefinitely with capped
// exponential backoff; rows are never dropped.
package relay

import (
	"context"
	"log/slog"
	"time"

	"casework/internal/outbox"
	"casework/internal/platform/metrics"
)

// Publisher delivers one event to the bus. Implementations must be safe for
// repeated delivery of the same event: the relay only guarantees
// at-least-once.
type Publisher interface {
	Publish(ctx context.Context, event outbox.Event) error
}

type Relay struct {
	store        outbox.Store
	publisher    Publisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	batchSize    int
	pollInterval time.Duration
	maxBackoff   time.Duration
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithMaxBackoff(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.maxBackoff = d
		}
	}
}

func New(store outbox.Store, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:        store,
		publisher:    publisher,
		logger:       slog.Default(),
		batchSize:    100,
		pollInterval: time.Second,
		maxBackoff:   time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until ctx is cancelled. A full batch triggers an
// immediate follow-up poll; a publish failure backs off exponentially up to
// maxBackoff and then keeps retrying at that cadence.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.pollInterval
	for {
		n, err := r.Drain(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.logger.ErrorContext(ctx, "outbox publish failed, backing off",
				"error", err,
				"backoff", backoff.String(),
			)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, r.maxBackoff)
			continue
		case n == r.batchSize:
			// Full batch: more rows are likely waiting.
			backoff = r.pollInterval
			continue
		default:
			backoff = r.pollInterval
			if !sleep(ctx, r.pollInterval) {
				return ctx.Err()
			}
		}
	}
}

// Drain performs one claim-publish-mark pass and returns how many events were
// published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.store.ClaimAndProcess(ctx, r.batchSize, func(ctx context.Context, events []outbox.Event) error {
		for _, e := range events {
			if err := r.publisher.Publish(ctx, e); err != nil {
				if r.metrics != nil {
					r.metrics.OutboxPublishErrors.Inc()
				}
				return err
			}
			if r.metrics != nil {
				r.metrics.OutboxPublished.Inc()
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.RelayBatchDuration.Observe(time.Since(start).Seconds())
		if pending, perr := r.store.PendingCount(ctx); perr == nil {
			r.metrics.OutboxPending.Set(float64(pending))
		}
	}
	if n > 0 {
		r.logger.DebugContext(ctx, "outbox batch published", "events", n)
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
