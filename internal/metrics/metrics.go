// ABOUTME: Prometheus collectors for the gateway on a private registry
// ABOUTME: Tracks sessions by state, admission outcomes, and forward latency

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the gateway's collectors. All collectors live on a private
// registry so the exposition endpoint carries only gateway series.
type Metrics struct {
	registry *prometheus.Registry

	Sessions       *prometheus.GaugeVec
	Requests       prometheus.Counter
	AuthFailures   prometheus.Counter
	RateLimited    prometheus.Counter
	EngineErrors   prometheus.Counter
	ForwardSeconds prometheus.Histogram
}

// New builds and registers the collector set.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conhub_sessions",
			Help: "Current sessions by connection state.",
		}, []string{"state"}),
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conhub_requests_total",
			Help: "JSON-RPC requests forwarded to the engine.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conhub_auth_failures_total",
			Help: "Connections rejected for missing or invalid credentials.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conhub_rate_limited_total",
			Help: "Connections rejected by the per-identity admission limit.",
		}),
		EngineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conhub_engine_errors_total",
			Help: "Forward failures from the engine, including timeouts.",
		}),
		ForwardSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "conhub_forward_seconds",
			Help:    "Round-trip latency of requests forwarded to the engine.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.Sessions,
		m.Requests,
		m.AuthFailures,
		m.RateLimited,
		m.EngineErrors,
		m.ForwardSeconds,
	)

	return m
}

// UpdateSessions replaces the per-state session gauge with the given counts.
// States absent from counts are cleared.
func (m *Metrics) UpdateSessions(counts map[string]int) {
	m.Sessions.Reset()
	for state, n := range counts {
		m.Sessions.WithLabelValues(state).Set(float64(n))
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
