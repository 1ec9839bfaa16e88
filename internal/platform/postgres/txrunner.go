package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "casework/pkg/domain-errors"
	txcontext "casework/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner executes a function inside a database transaction carried through
// context. Stores that find the transaction in context join it, which is how
// an engine command and its outbox rows commit atomically.
type TxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx begins a transaction, stashes it in the context, runs fn, and
// commits when fn returns nil. Engine operations are cancellable up to the
// commit; once committed they are final.
func (t *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit()
}
