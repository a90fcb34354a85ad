package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bargainlabs/dealhound/internal/model"
)

// Metrics exposes hunt counters on a private Prometheus registry, served
// by the API server at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	huntsTotal         *prometheus.CounterVec
	opportunitiesTotal prometheus.Counter
	huntDuration       prometheus.Histogram
	tokensTotal        *prometheus.CounterVec
	llmCostTotal       prometheus.Counter
}

// NewMetrics registers all hunt collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		huntsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealhound",
			Name:      "hunts_total",
			Help:      "Hunt runs by final status.",
		}, []string{"status"}),
		opportunitiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dealhound",
			Name:      "opportunities_total",
			Help:      "Deals surfaced to the user.",
		}),
		huntDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dealhound",
			Name:      "hunt_duration_seconds",
			Help:      "Wall-clock duration of hunt runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealhound",
			Name:      "tokens_total",
			Help:      "Planner tokens by direction.",
		}, []string{"direction"}),
		llmCostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dealhound",
			Name:      "llm_cost_usd_total",
			Help:      "Cumulative model spend in USD.",
		}),
	}

	m.registry.MustRegister(
		m.huntsTotal,
		m.opportunitiesTotal,
		m.huntDuration,
		m.tokensTotal,
		m.llmCostTotal,
	)
	return m
}

// ObserveHunt records a finished hunt. Safe on a nil receiver so the
// runner works without metrics wired.
func (m *Metrics) ObserveHunt(status model.RunStatus, elapsed time.Duration, usage model.RunUsage, surfaced bool) {
	if m == nil {
		return
	}
	m.huntsTotal.WithLabelValues(string(status)).Inc()
	m.huntDuration.Observe(elapsed.Seconds())
	m.tokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
	m.tokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
	m.llmCostTotal.Add(usage.Cost)
	if surfaced {
		m.opportunitiesTotal.Inc()
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
