// Package store keeps the append-only webhook attempt trail.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"verity/internal/webhook/models"
	"verity/pkg/platform/sentinel"
)

type attemptKey struct {
	webhookID string
	number    int
}

// InMemoryStore keeps attempts in insertion order.
type InMemoryStore struct {
	mu       sync.RWMutex
	attempts []models.Attempt
	keys     map[attemptKey]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[attemptKey]struct{})}
}

// Append rejects a second record for the same (webhook, attempt) pair.
func (s *InMemoryStore) Append(_ context.Context, a *models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := attemptKey{a.WebhookID, a.AttemptNumber}
	if _, ok := s.keys[k]; ok {
		return fmt.Errorf("webhook attempt %s/%d: %w", a.WebhookID, a.AttemptNumber, sentinel.ErrConflict)
	}
	s.keys[k] = struct{}{}
	s.attempts = append(s.attempts, *a)
	return nil
}

// ListByCase returns attempts oldest first.
func (s *InMemoryStore) ListByCase(_ context.Context, caseID string) ([]models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Attempt
	for _, a := range s.attempts {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
