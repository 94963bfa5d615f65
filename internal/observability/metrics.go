package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// Every method is safe on a nil *Metrics so components can run unobserved in tests.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions   prometheus.Gauge
	Turns            *prometheus.CounterVec
	LLMDegraded      *prometheus.CounterVec
	LLMLatency       prometheus.Histogram
	Notifications    *prometheus.CounterVec
	FinalizeOutcomes *prometheus.CounterVec
	Evictions        *prometheus.CounterVec
}

// NewMetrics registers instruments on a private registry, so several instances
// (one per test) never collide on the global default registerer.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Call sessions currently held in memory.",
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Webhook turns by handling kind.",
		}, []string{"kind"}),
		LLMDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_degraded_total",
			Help:      "Language model calls replaced by a canned reply, by operation.",
		}, []string{"op"}),
		LLMLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_ms",
			Help:      "Language model completion latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 1500, 2000, 3000, 4500, 6000, 10000},
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Call summary notifications by result.",
		}, []string{"result"}),
		FinalizeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_outcomes_total",
			Help:      "Finalize invocations by outcome and reason.",
		}, []string{"outcome", "reason"}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_evictions_total",
			Help:      "Sessions removed from memory, by cause.",
		}, []string{"cause"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEvicted(cause string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.Evictions.WithLabelValues(cause).Inc()
}

func (m *Metrics) Turn(kind string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(kind).Inc()
}

func (m *Metrics) Degraded(op string) {
	if m == nil {
		return
	}
	m.LLMDegraded.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveLLMLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.LLMLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Finalized(outcome, reason string) {
	if m == nil {
		return
	}
	m.FinalizeOutcomes.WithLabelValues(outcome, reason).Inc()
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
