package idempotency

import (
	"context"
	"sync"

	"verity/pkg/platform/sentinel"
)

// InMemoryStore keeps reservations in a map. Expired records are replaced on
// the next PutIfAbsent for the same key.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func memoryKey(clientID, key string) string {
	return clientID + "\x00" + key
}

func (s *InMemoryStore) Get(_ context.Context, clientID, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[memoryKey(clientID, key)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

func (s *InMemoryStore) PutIfAbsent(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey(rec.ClientID, rec.Key)
	if existing, ok := s.records[k]; ok && !existing.Expired(rec.CreatedAt) {
		return sentinel.ErrConflict
	}
	s.records[k] = rec
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, clientID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, memoryKey(clientID, key))
	return nil
}
