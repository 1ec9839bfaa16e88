// Package intake feeds the work queue from the event bus: a completed risk
// assessment opens the case's work item, or mirrors the adjudicated level
// onto an existing one. Opening is idempotent by application id, so the
// relay's at-least-once delivery is safe without a dedup guard.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"casework/internal/outbox"
	"casework/internal/platform/config"
	"casework/internal/work/models"
	"casework/pkg/domain"
	"casework/pkg/requestcontext"
)

// Service is the slice of the work queue service the intake drives.
type Service interface {
	OpenForCase(ctx context.Context, applicationID domain.CaseID, riskLevel domain.RiskLevel) (*models.WorkItem, error)
}

// completedPayload is the subset of the assessment completion event the
// intake needs.
type completedPayload struct {
	CaseID    string `json:"case_id"`
	RiskLevel string `json:"risk_level"`
}

type Consumer struct {
	client  *kgo.Client
	service Service
	logger  *slog.Logger
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer joins the intake consumer group on the events topic.
func NewConsumer(cfg config.Kafka, service Service, opts ...Option) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.IntakeGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create intake client: %w", err)
	}
	c := &Consumer{
		client:  client,
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run polls the bus until ctx is cancelled. Offsets commit only after every
// record in the fetch was handled.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = requestcontext.WithActor(ctx, "system", "case intake")
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
			c.logger.ErrorContext(ctx, "intake handling failed, not committing", "error", handleErr)
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
		c.logger.ErrorContext(ctx, "dropping malformed event record",
			"offset", record.Offset,
			"error", err,
		)
		return nil
	}
	if env.EventType != "risk_assessment.completed" {
		return nil
	}

	var payload completedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.logger.ErrorContext(ctx, "dropping malformed completion payload",
			"event_id", env.ID,
			"error", err,
		)
		return nil
	}
	level, err := domain.ParseRiskLevel(payload.RiskLevel)
	if err != nil {
		c.logger.ErrorContext(ctx, "dropping completion with unknown risk level",
			"event_id", env.ID,
			"risk_level", payload.RiskLevel,
		)
		return nil
	}

	item, err := c.service.OpenForCase(ctx, domain.CaseID(payload.CaseID), level)
	if err != nil {
		return fmt.Errorf("open work item for case %s: %w", payload.CaseID, err)
	}
	c.logger.InfoContext(ctx, "work item opened from completed assessment",
		"case_id", payload.CaseID,
		"work_item_id", item.ID.String(),
		"risk_level", string(level),
	)
	return nil
}

func (c *Consumer) Close() {
	c.client.Close()
}
