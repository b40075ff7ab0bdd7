// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the pipeline.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	runsCreated    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	stageRuns      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	revisions      prometheus.Counter
	chainsInFlight prometheus.Gauge
	staleChains    prometheus.Counter
}

// NewMetrics creates and registers the pipeline collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teamflow",
			Name:      "runs_created_total",
			Help:      "Runs submitted.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamflow",
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal status.",
		}, []string{"status"}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamflow",
			Name:      "stage_executions_total",
			Help:      "Stage executions by outcome.",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teamflow",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of stage executions including the agent call.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		revisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teamflow",
			Name:      "revisions_total",
			Help:      "Completed revision loop iterations.",
		}),
		chainsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "teamflow",
			Name:      "chains_in_flight",
			Help:      "Chains currently executing on this process.",
		}),
		staleChains: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teamflow",
			Name:      "stale_chains_total",
			Help:      "Chains stopped because a newer regeneration superseded them.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsCreated,
		m.runsFinished,
		m.stageRuns,
		m.stageDuration,
		m.revisions,
		m.chainsInFlight,
		m.staleChains,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunCreated() {
	if m == nil {
		return
	}
	m.runsCreated.Inc()
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(status).Inc()
}

// ObserveStage records one stage execution and its duration.
func (m *Metrics) ObserveStage(stage, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) RevisionCompleted() {
	if m == nil {
		return
	}
	m.revisions.Inc()
}

func (m *Metrics) ChainStarted() {
	if m == nil {
		return
	}
	m.chainsInFlight.Inc()
}

func (m *Metrics) ChainDone() {
	if m == nil {
		return
	}
	m.chainsInFlight.Dec()
}

func (m *Metrics) StaleChain() {
	if m == nil {
		return
	}
	m.staleChains.Inc()
}
