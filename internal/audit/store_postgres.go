package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"casework/internal/outbox"
)

// PostgresStore materializes events into audit_log for querying and
// reporting. Inserts are idempotent: duplicate deliveries hit the primary
// key and are ignored.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, env outbox.Envelope) error {
	eventID, err := uuid.Parse(env.ID)
	if err != nil {
		return fmt.Errorf("parse event id %q: %w", env.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, aggregate_id, aggregate_type, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`,
		eventID,
		env.AggregateID,
		env.AggregateType,
		env.EventType,
		[]byte(env.Payload),
		env.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit_log row: %w", err)
	}
	return nil
}
