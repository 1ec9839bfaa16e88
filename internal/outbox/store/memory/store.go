// Package memory implements the outbox store in process memory for unit
// tests and local development without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"casework/internal/outbox"
)

type Store struct {
	mu     sync.Mutex
	events []outbox.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, events ...outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// ClaimAndProcess mirrors the postgres semantics: rows are marked processed
// only when fn succeeds, so a failing fn leaves them claimable again.
func (s *Store) ClaimAndProcess(ctx context.Context, limit int, fn func(ctx context.Context, events []outbox.Event) error) (int, error) {
	s.mu.Lock()
	var claimed []outbox.Event
	var indexes []int
	for i, e := range s.events {
		if e.ProcessedAt == nil {
			claimed = append(claimed, e)
			indexes = append(indexes, i)
			if len(claimed) == limit {
				break
			}
		}
	}
	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].OccurredAt.Before(claimed[j].OccurredAt)
	})
	s.mu.Unlock()

	if len(claimed) == 0 {
		return 0, nil
	}

	if err := fn(ctx, claimed); err != nil {
		return 0, err
	}

	s.mu.Lock()
	now := time.Now()
	for _, i := range indexes {
		if s.events[i].ProcessedAt == nil {
			t := now
			s.events[i].ProcessedAt = &t
		}
	}
	s.mu.Unlock()
	return len(claimed), nil
}

func (s *Store) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.ProcessedAt == nil {
			n++
		}
	}
	return n, nil
}

// All returns a copy of every stored event, processed or not. Test helper.
func (s *Store) All() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Event, len(s.events))
	copy(out, s.events)
	return out
}
