package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupeWindow bounds how long event ids are remembered. Events older than
// this cannot reappear from the bus under the topic's retention, and the
// database conflict guard still backstops the cache.
const dedupeWindow = 14 * 24 * time.Hour

// RedisGuard deduplicates events via SET NX on the event id.
type RedisGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client, prefix: "casework:event:"}
}

// FirstSeen claims the event id atomically. Returns false when another
// delivery already claimed it.
func (g *RedisGuard) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+eventID, 1, dedupeWindow).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", eventID, err)
	}
	return ok, nil
}

// Release gives the claim back so a redelivery can retry after a failed
// handle.
func (g *RedisGuard) Release(ctx context.Context, eventID string) error {
	if err := g.client.Del(ctx, g.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("del %s: %w", eventID, err)
	}
	return nil
}

// PassthroughGuard reports every event as first-seen. Used when redis is not
// configured; the database conflict guard then carries idempotency alone.
type PassthroughGuard struct{}

func (PassthroughGuard) FirstSeen(context.Context, string) (bool, error) {
	return true, nil
}

func (PassthroughGuard) Release(context.Context, string) error {
	return nil
}
