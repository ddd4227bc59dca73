// Package policy answers permission checks for API clients from a short-lived
// cache in front of the client store.
package policy

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/sentinel"
)

// DefaultTTL bounds how long a revoked permission keeps working.
const DefaultTTL = time.Minute

// PermissionSource loads the permissions granted to a client.
type PermissionSource interface {
	Permissions(ctx context.Context, clientID string) ([]string, error)
}

type entry struct {
	permissions []string
	loadedAt    time.Time
}

// Cache is a TTL cache of client permissions. Concurrent misses for the same
// client share one load.
type Cache struct {
	source PermissionSource
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry
	loads   singleflight.Group
}

// Option configures the Cache.
type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the cache clock; tests use it to step past the TTL.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache. A non-positive ttl uses DefaultTTL.
func New(source PermissionSource, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		logger:  slog.Default(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allowed reports whether clientID holds permission. Unknown clients hold
// nothing.
func (c *Cache) Allowed(ctx context.Context, clientID, permission string) (bool, error) {
	if clientID == "" {
		return false, nil
	}
	perms, err := c.permissions(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return slices.Contains(perms, permission), nil
}

// Invalidate drops the cached permissions of a client.
func (c *Cache) Invalidate(clientID string) {
	c.mu.Lock()
	delete(c.entries, clientID)
	c.mu.Unlock()
}

func (c *Cache) permissions(ctx context.Context, clientID string) ([]string, error) {
	c.mu.RLock()
	e, ok := c.entries[clientID]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.loadedAt) < c.ttl {
		return e.permissions, nil
	}

	v, err, _ := c.loads.Do(clientID, func() (any, error) {
		perms, err := c.source.Permissions(ctx, clientID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[clientID] = entry{permissions: perms, loadedAt: c.now()}
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "client permissions loaded",
			"client_id", clientID,
			"count", len(perms),
		)
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
