// Package publisher emits audit events to an audit.Store.
//
// Emit is synchronous. Compliance-category events (case decisions) return the
// persistence error so the caller can decide whether its operation stands;
// operations-category failures are logged and counted only.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"verity/pkg/platform/audit"
	"verity/pkg/requestcontext"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit emission.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	PersistDuration prometheus.Histogram
}

// NewMetrics creates and registers audit publisher metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_audit_events_emitted_total",
			Help: "Total number of audit events persisted",
		}, []string{"category"}),
		PersistFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_audit_persist_failures_total",
			Help: "Total number of audit events that failed to persist",
		}, []string{"category"}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_audit_persist_duration_seconds",
			Help:    "Time spent persisting an audit event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// Publisher enriches events with request metadata and writes them to the store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates an audit publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists the event. Timestamp and RequestID are filled from the
// request context when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.PersistFailures.WithLabelValues(string(event.Category)).Inc()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit persistence failed",
				"action", event.Action,
				"case_id", event.CaseID,
				"category", event.Category,
				"error", err,
			)
		}
		if event.Category == audit.CategoryCompliance {
			return fmt.Errorf("compliance audit persistence failed: %w", err)
		}
		return nil
	}

	if p.metrics != nil {
		p.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		p.metrics.Emitted.WithLabelValues(string(event.Category)).Inc()
	}
	return nil
}
