package outbox

import "context"

// Store persists outbox rows.
//
// Append participates in the caller's transaction (pkg/platform/tx) so event
// rows commit atomically with the aggregate write that raised them.
//
// ClaimAndProcess drives the relay: it claims up to limit unprocessed rows
// ordered by occurred_at, invokes fn, and marks the rows processed only when
// fn returns nil, all within one claim scope. A crash at any point leaves
// the rows unprocessed and a competing relay instance cannot claim rows
// already held by another.
type Store interface {
	Append(ctx context.Context, events ...Event) error
	ClaimAndProcess(ctx context.Context, limit int, fn func(ctx context.Context, events []Event) error) (int, error)
	PendingCount(ctx context.Context) (int, error)
}
