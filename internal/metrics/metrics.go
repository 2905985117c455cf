package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Probe outcomes
const (
	OutcomeLive     = "live"
	OutcomeFallback = "fallback"
	OutcomeForced   = "forced"
)

// Metrics holds the collectors of the dashboard. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	BackendProbes   *prometheus.CounterVec
	BackendCalls    *prometheus.CounterVec
	StoreReloads    *prometheus.CounterVec
	TotalRequests   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BackendProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealpop_backend_probe_total",
				Help: "Liveness probe decisions by backend kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		BackendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealpop_backend_calls_total",
				Help: "Data backend calls by backend, operation and outcome",
			},
			[]string{"backend", "operation", "outcome"},
		),
		StoreReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealpop_alert_store_reloads_total",
				Help: "Alert store reloads by outcome",
			},
			[]string{"outcome"},
		),
		TotalRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealpop_http_requests_total",
				Help: "Total number of HTTP requests to the dashboard API",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealpop_http_request_duration_seconds",
				Help:    "Histogram of response duration of the dashboard API",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	reg.MustRegister(m.BackendProbes, m.BackendCalls, m.StoreReloads, m.TotalRequests, m.RequestDuration)
	return m
}

func (m *Metrics) ObserveProbe(kind, outcome string) {
	if m == nil {
		return
	}
	m.BackendProbes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveBackendCall(backend, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.BackendCalls.WithLabelValues(backend, operation, outcome).Inc()
}

func (m *Metrics) ObserveReload(outcome string) {
	if m == nil {
		return
	}
	m.StoreReloads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TotalRequests.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}
