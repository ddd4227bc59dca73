package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for client authentication and registration.
type Metrics struct {
	ClientsRegistered      prometheus.Counter
	AuthFailures           *prometheus.CounterVec
	AuthenticateDuration   prometheus.Histogram
	RegisterClientDuration prometheus.Histogram
}

// New creates a new Metrics instance with all tenant metrics registered.
func New() *Metrics {
	return &Metrics{
		ClientsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verity_clients_registered_total",
			Help: "Total number of API clients registered",
		}),
		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_client_auth_failures_total",
			Help: "API key authentication failures by reason",
		}, []string{"reason"}),
		AuthenticateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_client_authenticate_duration_seconds",
			Help:    "Duration of API key authentication (bcrypt dominated)",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		RegisterClientDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_register_client_duration_seconds",
			Help:    "Duration of client registration",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveAuthenticate records the duration of an Authenticate call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAuthenticate(start time.Time) {
	m.AuthenticateDuration.Observe(time.Since(start).Seconds())
}

// ObserveRegisterClient records the duration of a RegisterClient call.
func (m *Metrics) ObserveRegisterClient(start time.Time) {
	m.RegisterClientDuration.Observe(time.Since(start).Seconds())
}

// IncrementAuthFailure records a rejected API key.
func (m *Metrics) IncrementAuthFailure(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}
