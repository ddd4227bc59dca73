package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the case lifecycle.
type Metrics struct {
	CasesCreated       prometheus.Counter
	IdempotentReplays  prometheus.Counter
	IdempotencyLookups *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	TransitionRejected *prometheus.CounterVec
	NotifyFailures     prometheus.Counter
	ExtractionScore    prometheus.Histogram
	CreateDuration     prometheus.Histogram
	ProcessDuration    prometheus.Histogram
}

// New creates a new Metrics instance with all case metrics registered.
func New() *Metrics {
	return &Metrics{
		CasesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_cases_created_total",
			Help: "Total number of verification cases created",
		}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_cases_idempotent_replays_total",
			Help: "Create requests answered from an existing idempotency reservation",
		}),
		IdempotencyLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_idempotency_lookups_total",
			Help: "Idempotency key lookups by result",
		}, []string{"result"}), // result: "hit", "miss"
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_case_transitions_total",
			Help: "Successful case status transitions by target status",
		}, []string{"status"}),
		TransitionRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_case_transitions_rejected_total",
			Help: "Rejected case status transitions by reason",
		}, []string{"reason"}), // reason: "not_allowed", "concurrent_update"
		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_case_notify_failures_total",
			Help: "Webhook jobs that could not be enqueued after a status change",
		}),
		ExtractionScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_extraction_overall_confidence",
			Help:    "Overall extraction confidence of processed documents",
			Buckets: []float64{50, 60, 70, 80, 85, 90, 95, 100},
		}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_case_create_duration_seconds",
			Help:    "Duration of case creation including idempotency checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ProcessDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_case_process_duration_seconds",
			Help:    "Duration of document processing (extraction, validation, routing)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveCreate records the duration of a Create call.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}

// ObserveProcess records the duration of a ProcessDocument call.
func (m *Metrics) ObserveProcess(start time.Time) {
	m.ProcessDuration.Observe(time.Since(start).Seconds())
}

// RecordTransition counts a persisted status change.
func (m *Metrics) RecordTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

// RecordRejectedTransition counts a refused status change.
func (m *Metrics) RecordRejectedTransition(reason string) {
	m.TransitionRejected.WithLabelValues(reason).Inc()
}
