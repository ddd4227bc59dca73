package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for bulk decisions.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Items         *prometheus.CounterVec
	ItemRetries   prometheus.Counter
	BatchSize     prometheus.Histogram
	BatchDuration prometheus.Histogram
}

// New creates a new Metrics instance with all bulk metrics registered.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_bulk_operations_total",
			Help: "Bulk decisions by decision and overall outcome",
		}, []string{"decision", "outcome"}), // outcome: "success", "partial", "failed"
		Items: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_bulk_items_total",
			Help: "Bulk decision items by result",
		}, []string{"result"}),
		ItemRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_bulk_item_retries_total",
			Help: "Retries of bulk items after transient storage errors",
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_bulk_batch_size",
			Help:    "Number of cases per bulk request",
			Buckets: []float64{1, 5, 10, 20, 30, 40, 50},
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_bulk_duration_seconds",
			Help:    "Duration of a bulk decision",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// ObserveBatch records the size and duration of a bulk decision.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveBatch(size int, start time.Time) {
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(time.Since(start).Seconds())
}
