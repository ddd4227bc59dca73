package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for webhook delivery.
type Metrics struct {
	Attempts        *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	AttemptsPerSend prometheus.Histogram
	JobsEnqueued    *prometheus.CounterVec
	RecordFailures  prometheus.Counter
}

// New creates a new Metrics instance with all webhook metrics registered.
func New() *Metrics {
	return &Metrics{
		Attempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_webhook_attempts_total",
			Help: "Webhook HTTP attempts by outcome",
		}, []string{"outcome"}), // outcome: "success", "client_error", "server_error", "network_error"
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_webhook_deliveries_total",
			Help: "Webhook deliveries by final result",
		}, []string{"event", "result"}), // result: "delivered", "rejected", "abandoned"
		Skipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_webhook_skipped_total",
			Help: "Webhook sends skipped without a network call",
		}, []string{"reason"}),
		AttemptDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_webhook_attempt_duration_seconds",
			Help:    "Duration of a single webhook HTTP attempt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		AttemptsPerSend: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_webhook_attempts_per_send",
			Help:    "Number of attempts used by one webhook send",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_webhook_jobs_enqueued_total",
			Help: "Webhook jobs handed to the delivery queue",
		}, []string{"queue", "result"}),
		RecordFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_webhook_attempt_record_failures_total",
			Help: "Webhook attempts that could not be written to the attempt store",
		}),
	}
}
