package service

import "context"

// NopTx satisfies StoreTx without transactional semantics. Used with the
// memory store, which applies each write atomically on its own.
type NopTx struct{}

func (NopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
