// Package httpobs provides the gateway's observability HTTP surface:
// health checks, Prometheus metrics, and request-enrichment middleware.
package httpobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the gateway records to.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ConnectionsActive prometheus.Gauge
	SessionsActive   prometheus.Gauge
	PromptTurnsTotal *prometheus.CounterVec
	CorrelatorTimeoutsTotal prometheus.Counter
	SubprocessRestartsTotal prometheus.Counter
}

// NewMetrics creates and registers every collector with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acpgate",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by the auth/health/metrics surface",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "acpgate",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ConnectionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "acpgate",
				Name:      "connections_active",
				Help:      "Number of live client WebSocket connections",
			},
		),
		SessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "acpgate",
				Name:      "sessions_active",
				Help:      "Number of active ACP sessions",
			},
		),
		PromptTurnsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "acpgate",
				Name:      "prompt_turns_total",
				Help:      "Total completed prompt turns, by stop reason",
			},
			[]string{"stop_reason"},
		),
		CorrelatorTimeoutsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "acpgate",
				Name:      "correlator_timeouts_total",
				Help:      "Total JSON-RPC requests to an agent subprocess that timed out waiting for a response",
			},
		),
		SubprocessRestartsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "acpgate",
				Name:      "subprocess_restarts_total",
				Help:      "Total agent subprocess exits observed by the supervisor",
			},
		),
	}
}
