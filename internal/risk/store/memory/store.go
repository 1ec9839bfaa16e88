// Package memory implements the assessment store in process memory for unit
// tests and local development.
package memory

import (
	"context"
	"sync"

	"casework/internal/risk/models"
	"casework/pkg/domain"
	"casework/pkg/platform/sentinel"
)

type Store struct {
	mu     sync.Mutex
	byID   map[domain.AssessmentID]*models.RiskAssessment
	byCase map[domain.CaseID]domain.AssessmentID
}

func New() *Store {
	return &Store{
		byID:   make(map[domain.AssessmentID]*models.RiskAssessment),
		byCase: make(map[domain.CaseID]domain.AssessmentID),
	}
}

func (s *Store) Create(_ context.Context, a *models.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCase[a.CaseID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[a.ID] = clone(a)
	s.byCase[a.CaseID] = a.ID
	return nil
}

func (s *Store) Get(_ context.Context, id domain.AssessmentID) (*models.RiskAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(a), nil
}

func (s *Store) GetByCase(_ context.Context, caseID domain.CaseID) (*models.RiskAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCase[caseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

// Update applies optimistic concurrency: the write succeeds only when the
// caller holds the current version, then bumps it.
func (s *Store) Update(_ context.Context, a *models.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != a.Version {
		return sentinel.ErrVersionMismatch
	}
	a.Version++
	s.byID[a.ID] = clone(a)
	return nil
}

func clone(a *models.RiskAssessment) *models.RiskAssessment {
	cp := *a
	cp.Factors = append([]models.RiskFactor(nil), a.Factors...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		cp.CompletedAt = &t
	}
	if a.RejectedAt != nil {
		t := *a.RejectedAt
		cp.RejectedAt = &t
	}
	return &cp
}
