// Package audit materializes published domain events into the audit_log
// table. It is the in-repo reference consumer for the bus contract: handling
// is idempotent by event id, so the relay's at-least-once delivery yields
// exactly one recorded effect per event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"casework/internal/outbox"
	"casework/internal/platform/config"
	"casework/internal/platform/metrics"
)

// Guard answers whether an event id is being seen for the first time. A
// false answer means the event was already handled and must be skipped.
// Release undoes a claim whose handling failed, so the redelivery is seen
// as first again.
type Guard interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Store appends audit records. Record must be idempotent by event id: the
// guard is an optimization, not the correctness boundary.
type Store interface {
	Record(ctx context.Context, env outbox.Envelope) error
}

type Consumer struct {
	client  *kgo.Client
	guard   Guard
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// NewConsumer joins the consumer group on the events topic.
func NewConsumer(cfg config.Kafka, guard Guard, store Store, opts ...Option) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer client: %w", err)
	}
	c := &Consumer{
		client: client,
		guard:  guard,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run polls the bus until ctx is cancelled. Offsets commit only after every
// record in the fetch was handled, so a crash re-delivers records; the guard
// and the store's conflict handling absorb the duplicates.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				c.logger.ErrorContext(ctx, "fetch error",
					"topic", fe.Topic,
					"error", fe.Err,
				)
			}
			continue
		}

		var handleErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if handleErr != nil {
				return
			}
			handleErr = c.handle(ctx, record)
		})
		if handleErr != nil {
			c.logger.ErrorContext(ctx, "event handling failed, not committing", "error", handleErr)
			continue
		}

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.ErrorContext(ctx, "offset commit failed", "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) error {
	var env outbox.Envelope
	if err := json.Unmarshal(record.Value, &env); err != nil {
		// Malformed records cannot be retried into validity; log and move on.
		c.logger.ErrorContext(ctx, "dropping malformed event record",
			"offset", record.Offset,
			"error", err,
		)
		return nil
	}
	if c.metrics != nil {
		c.metrics.EventsConsumed.Inc()
	}

	first, err := c.guard.FirstSeen(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("idempotency check for %s: %w", env.ID, err)
	}
	if !first {
		if c.metrics != nil {
			c.metrics.EventsDeduplicated.Inc()
		}
		return nil
	}

	if err := c.store.Record(ctx, env); err != nil {
		// The claim must not outlive a failed write, or the redelivery
		// would be skipped and the event lost.
		if rerr := c.guard.Release(ctx, env.ID); rerr != nil {
			c.logger.ErrorContext(ctx, "releasing claim after failed record",
				"event_id", env.ID,
				"error", rerr,
			)
		}
		return fmt.Errorf("record audit event %s: %w", env.ID, err)
	}
	return nil
}

func (c *Consumer) Close() {
	c.client.Close()
}
