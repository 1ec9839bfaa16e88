// Package postgres implements the outbox store on PostgreSQL.
//
// Relay coordination uses FOR UPDATE SKIP LOCKED: concurrent relay instances
// claim disjoint row sets, which is the one place the system needs true
// mutual exclusion, scoped to rows rather than aggregates.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"casework/internal/outbox"
	"casework/pkg/domain"
	txcontext "casework/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts outbox rows. When the context carries a transaction the
// rows join it, which is what makes the outbox transactional.
func (s *Store) Append(ctx context.Context, events ...outbox.Event) error {
	execer := s.execer(ctx)
	query := `
		INSERT INTO outbox (id, aggregate_id, aggregate_type, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, e := range events {
		_, err := execer.ExecContext(ctx, query,
			uuid.UUID(e.ID),
			e.AggregateID,
			e.AggregateType,
			e.EventType,
			e.Payload,
			e.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("insert outbox row: %w", err)
		}
	}
	return nil
}

// ClaimAndProcess claims up to limit unprocessed rows (oldest first), hands
// them to fn, and marks them processed when fn succeeds. The claim, the
// publish callback, and the mark run inside one transaction: a crash between
// publish and commit leaves the rows unprocessed, so they are republished on
// the next pass (at-least-once).
func (s *Store) ClaimAndProcess(ctx context.Context, limit int, fn func(ctx context.Context, events []outbox.Event) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, occurred_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY occurred_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}

	var events []outbox.Event
	for rows.Next() {
		var (
			e   outbox.Event
			eid uuid.UUID
		)
		if err := rows.Scan(&eid, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload, &e.OccurredAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		e.ID = domain.EventID(eid)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	if len(events) == 0 {
		return 0, nil
	}

	if err := fn(ctx, events); err != nil {
		return 0, err
	}

	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = uuid.UUID(e.ID)
	}
	now := time.Now()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET processed_at = $1 WHERE id = $2 AND processed_at IS NULL`,
			now, id,
		); err != nil {
			return 0, fmt.Errorf("mark outbox row processed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit claim tx: %w", err)
	}
	return len(events), nil
}

// PendingCount reports how many rows await publishing.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM outbox WHERE processed_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox rows: %w", err)
	}
	return n, nil
}
