package service

import "context"

// NopTx satisfies StoreTx without a database. Memory stores apply each write
// atomically under their own mutex, so the in-memory wiring needs no
// transaction scope.
type NopTx struct{}

func (NopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
