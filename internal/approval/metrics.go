package approval

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the approval service Prometheus collectors on an isolated
// registry, so tests and embedding processes never collide with the global
// default registry.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec

	PairingsCreatedTotal     prometheus.Counter
	CredentialDecisionsTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance. activeSessions feeds the
// vaultpair_active_sessions gauge and must be safe to call from the scrape
// goroutine.
func NewMetrics(activeSessions func() float64) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultpair_requests_total",
				Help: "Total HTTP requests against the approval surface.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultpair_request_duration_seconds",
				Help:    "HTTP request duration in seconds. Credential requests include human approval time.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.5m
			},
			[]string{"method", "path", "status"},
		),
		PairingsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vaultpair_pairings_created_total",
				Help: "Total pairing codes issued.",
			},
		),
		CredentialDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultpair_credential_decisions_total",
				Help: "Credential request outcomes by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSeconds,
		m.PairingsCreatedTotal,
		m.CredentialDecisionsTotal,
	)

	if activeSessions != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "vaultpair_active_sessions",
				Help: "Sessions currently in the session table.",
			},
			activeSessions,
		))
	}
	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
