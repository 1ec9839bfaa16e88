// Package memory implements the work item store in process memory for unit
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"casework/internal/work/models"
	"casework/pkg/domain"
	"casework/pkg/platform/sentinel"
)

type Store struct {
	mu    sync.Mutex
	byID  map[domain.WorkItemID]*models.WorkItem
	byApp map[domain.CaseID]domain.WorkItemID
	seq   atomic.Int64
}

func New() *Store {
	return &Store{
		byID:  make(map[domain.WorkItemID]*models.WorkItem),
		byApp: make(map[domain.CaseID]domain.WorkItemID),
	}
}

func (s *Store) Create(_ context.Context, item *models.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byApp[item.ApplicationID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[item.ID] = clone(item)
	s.byApp[item.ApplicationID] = item.ID
	return nil
}

func (s *Store) Get(_ context.Context, id domain.WorkItemID) (*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(w), nil
}

func (s *Store) GetByApplication(_ context.Context, applicationID domain.CaseID) (*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byApp[applicationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

// Update applies optimistic concurrency: the write succeeds only when the
// caller holds the current version, then bumps it.
func (s *Store) Update(_ context.Context, item *models.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[item.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != item.Version {
		return sentinel.ErrVersionMismatch
	}
	item.Version++
	s.byID[item.ID] = clone(item)
	return nil
}

func (s *Store) List(_ context.Context, filter models.ListFilter) ([]*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*models.WorkItem
	for _, w := range s.byID {
		if filter.Matches(w) {
			items = append(items, clone(w))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) ListDueForRefresh(_ context.Context, now time.Time) ([]*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*models.WorkItem
	for _, w := range s.byID {
		if w.Status == models.StatusCompleted && w.NextRefreshDate != nil && !w.NextRefreshDate.After(now) {
			items = append(items, clone(w))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].NextRefreshDate.Before(*items[j].NextRefreshDate)
	})
	return items, nil
}

func (s *Store) NextSequence(_ context.Context) (int64, error) {
	return s.seq.Add(1), nil
}

func clone(w *models.WorkItem) *models.WorkItem {
	cp := *w
	cp.Comments = append([]models.Comment(nil), w.Comments...)
	cp.History = append([]models.HistoryEntry(nil), w.History...)
	cp.AssignedAt = cloneTime(w.AssignedAt)
	cp.ApprovedAt = cloneTime(w.ApprovedAt)
	cp.RejectedAt = cloneTime(w.RejectedAt)
	cp.NextRefreshDate = cloneTime(w.NextRefreshDate)
	cp.LastRefreshedAt = cloneTime(w.LastRefreshedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
