// Package idempotency prevents duplicate case creation when a client retries
// a request with the same idempotency key.
//
// A key is reserved with an insert-if-absent write scoped to the client. The
// reservation maps to the case ID the first request created and lives for 24
// hours; afterwards the key may be reused.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// DefaultTTL is how long a key stays reserved.
const DefaultTTL = 24 * time.Hour

// Record maps a client's idempotency key to the case it created.
type Record struct {
	ClientID  string
	Key       string
	CaseID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the reservation has lapsed at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists reservations. PutIfAbsent must be atomic and return
// sentinel.ErrConflict when the key already exists.
type Store interface {
	Get(ctx context.Context, clientID, key string) (*Record, error)
	PutIfAbsent(ctx context.Context, rec Record) error
	Delete(ctx context.Context, clientID, key string) error
}

// Guard checks and reserves idempotency keys.
type Guard struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	lookups *prometheus.CounterVec
}

// Option configures a Guard.
type Option func(*Guard)

// WithTTL overrides the reservation lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithLookupCounter counts Check outcomes by result label ("hit", "miss").
func WithLookupCounter(c *prometheus.CounterVec) Option {
	return func(g *Guard) {
		g.lookups = c
	}
}

// New creates a Guard over the given store.
func New(store Store, opts ...Option) *Guard {
	g := &Guard{store: store, ttl: DefaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check returns the case ID reserved under (clientID, key), if any.
func (g *Guard) Check(ctx context.Context, clientID, key string) (string, bool, error) {
	rec, err := g.store.Get(ctx, clientID, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		g.count("miss")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check idempotency key: %w", err)
	}
	if rec.Expired(requestcontext.Now(ctx)) {
		g.count("miss")
		return "", false, nil
	}
	g.count("hit")
	return rec.CaseID, true, nil
}

// Store reserves key for caseID. An existing reservation yields an error
// wrapping sentinel.ErrConflict, distinct from other storage failures.
func (g *Guard) Store(ctx context.Context, clientID, key, caseID string) error {
	now := requestcontext.Now(ctx)
	rec := Record{
		ClientID:  clientID,
		Key:       key,
		CaseID:    caseID,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.store.PutIfAbsent(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return fmt.Errorf("idempotency key already reserved: %w", err)
		}
		return fmt.Errorf("store idempotency key: %w", err)
	}
	return nil
}

// Release drops a reservation whose case was never created. Failures are
// logged; the record still expires on its own.
func (g *Guard) Release(ctx context.Context, clientID, key string) {
	if err := g.store.Delete(ctx, clientID, key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		g.logger.WarnContext(ctx, "failed to release idempotency key",
			"client_id", clientID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (g *Guard) count(result string) {
	if g.lookups != nil {
		g.lookups.WithLabelValues(result).Inc()
	}
}
