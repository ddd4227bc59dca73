// Package store persists client registrations, webhook settings and
// permissions.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"verity/internal/tenant/models"
	"verity/pkg/platform/sentinel"
)

// InMemoryStore keeps clients in maps guarded by a mutex.
type InMemoryStore struct {
	mu          sync.RWMutex
	clients     map[string]*models.Client
	byKeyID     map[string]string
	webhooks    map[string]models.WebhookConfig
	permissions map[string][]string
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		clients:     make(map[string]*models.Client),
		byKeyID:     make(map[string]string),
		webhooks:    make(map[string]models.WebhookConfig),
		permissions: make(map[string][]string),
	}
}

func (s *InMemoryStore) Register(_ context.Context, c *models.Client, cfg *models.WebhookConfig, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; ok {
		return fmt.Errorf("client %s: %w", c.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byKeyID[c.APIKeyID]; ok {
		return fmt.Errorf("api key %s: %w", c.APIKeyID, sentinel.ErrConflict)
	}
	copied := *c
	s.clients[c.ID] = &copied
	s.byKeyID[c.APIKeyID] = c.ID
	if cfg != nil {
		s.webhooks[c.ID] = copyConfig(*cfg)
	}
	s.permissions[c.ID] = slices.Clone(permissions)
	return nil
}

func (s *InMemoryStore) FindByAPIKeyID(_ context.Context, keyID string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKeyID[keyID]
	if !ok {
		return nil, fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
	}
	copied := *s.clients[id]
	return &copied, nil
}

func (s *InMemoryStore) WebhookConfig(_ context.Context, clientID string) (*models.WebhookConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[clientID]; !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}
	cfg, ok := s.webhooks[clientID]
	if !ok {
		return &models.WebhookConfig{}, nil
	}
	copied := copyConfig(cfg)
	return &copied, nil
}

func (s *InMemoryStore) UpdateWebhookConfig(_ context.Context, clientID string, cfg *models.WebhookConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}
	s.webhooks[clientID] = copyConfig(*cfg)
	return nil
}

func (s *InMemoryStore) SetActive(_ context.Context, clientID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}
	c.Active = active
	return nil
}

func (s *InMemoryStore) Permissions(_ context.Context, clientID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[clientID]; !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}
	return slices.Clone(s.permissions[clientID]), nil
}

func copyConfig(cfg models.WebhookConfig) models.WebhookConfig {
	cfg.Events = slices.Clone(cfg.Events)
	return cfg
}
