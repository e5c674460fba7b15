package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "companion"

// Metrics owns the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	attempts           *prometheus.CounterVec
	coinsDebited       prometheus.Counter
	companionsSaved    *prometheus.CounterVec
	wizardSessions     prometheus.GaugeFunc
}

// New registers every collector. sessions, when set, reports the number of
// live wizard sessions.
func New(sessions func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of generation requests.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 240},
		}, []string{"mode"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Upstream generation attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		coinsDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coins_debited_total",
			Help:      "Coins debited for successful generations.",
		}),
		companionsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "companion_saves_total",
			Help:      "Companion save attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.generations, m.generationDuration, m.attempts, m.coinsDebited, m.companionsSaved,
	)
	if sessions != nil {
		m.wizardSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wizard_sessions",
			Help:      "Live wizard sessions.",
		}, func() float64 { return float64(sessions()) })
		reg.MustRegister(m.wizardSessions)
	}
	return m
}

func (m *Metrics) ObserveAttempt(stage, outcome string) {
	m.attempts.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveGeneration(mode, outcome string, took time.Duration) {
	m.generations.WithLabelValues(mode, outcome).Inc()
	m.generationDuration.WithLabelValues(mode).Observe(took.Seconds())
}

func (m *Metrics) AddCoinsDebited(n int) {
	if n > 0 {
		m.coinsDebited.Add(float64(n))
	}
}

func (m *Metrics) CompanionSaved(outcome string) {
	m.companionsSaved.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
