// Package store persists verification cases. Every backend exposes the same
// conditional write: an update lands only while the stored status still
// matches the status the caller read.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"verity/internal/cases/models"
	"verity/pkg/platform/sentinel"
)

// InMemoryStore keeps cases in a map guarded by a mutex. Used in tests and
// single-process development.
type InMemoryStore struct {
	mu    sync.RWMutex
	cases map[string]*models.Case
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{cases: make(map[string]*models.Case)}
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
	}
	s.cases[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, sentinel.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) UpdateIfStatus(_ context.Context, c *models.Case, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.cases[c.ID]
	if !ok {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrNotFound)
	}
	if current.Status != expected {
		return fmt.Errorf("case %s is %s, expected %s: %w", c.ID, current.Status, expected, sentinel.ErrInvalidState)
	}
	s.cases[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) ListExpirable(_ context.Context, now time.Time, limit int) ([]*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Case
	for _, c := range s.cases {
		if c.IsOpen() && !c.ExpiresAt.After(now) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
