package stats

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensaves/savesbench/internal/client"
)

// Metrics mirrors collector events into a private Prometheus registry,
// served by the status server's /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	requests             *prometheus.CounterVec
	requestFailures      *prometheus.CounterVec
	verificationFailures *prometheus.CounterVec
	duration             *prometheus.HistogramVec
	activeUsers          prometheus.Gauge
}

// NewMetrics creates and registers the metric set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savesbench_requests_total",
				Help: "Total HTTP requests issued by the load drivers",
			},
			[]string{"method", "name", "status"},
		),
		requestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savesbench_request_failures_total",
				Help: "HTTP requests that failed (transport error or non-2xx)",
			},
			[]string{"method", "name"},
		),
		verificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "savesbench_verification_failures_total",
				Help: "Synthetic verification failures raised by content checks",
			},
			[]string{"check"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "savesbench_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "name"},
		),
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "savesbench_active_users",
			Help: "Simulated users currently running",
		}),
	}

	registry.MustRegister(m.requests)
	registry.MustRegister(m.requestFailures)
	registry.MustRegister(m.verificationFailures)
	registry.MustRegister(m.duration)
	registry.MustRegister(m.activeUsers)

	return m
}

// ObserveRequest records one HTTP call.
func (m *Metrics) ObserveRequest(s client.RequestStat) {
	status := strconv.Itoa(s.StatusCode)
	if s.StatusCode == 0 {
		status = "error"
	}
	m.requests.WithLabelValues(s.Method, s.Name, status).Inc()
	m.duration.WithLabelValues(s.Method, s.Name).Observe(s.Duration.Seconds())
	if s.Err != nil {
		m.requestFailures.WithLabelValues(s.Method, s.Name).Inc()
	}
}

// ObserveVerification records one synthetic failure.
func (m *Metrics) ObserveVerification(check string) {
	m.verificationFailures.WithLabelValues(check).Inc()
}

// SetActiveUsers updates the user gauge.
func (m *Metrics) SetActiveUsers(n int) {
	m.activeUsers.Set(float64(n))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
