// Package metrics exposes Prometheus instrumentation for runs and the agent bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	stageErrors  *prometheus.CounterVec
	dispatches   *prometheus.CounterVec
	pendingTasks prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "runs_started_total",
			Help:      "Pipeline runs accepted, by kind.",
		}, []string{"kind"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "runs_finished_total",
			Help:      "Pipeline runs that reached a terminal state, by kind and status.",
		}, []string{"kind", "status"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Errors recorded on runs, by stage.",
		}, []string{"stage"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_bridge",
			Name:      "dispatches_total",
			Help:      "Commands sent to the external agent, by type and outcome.",
		}, []string{"type", "outcome"}),
		pendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agent_bridge",
			Name:      "pending_tasks",
			Help:      "Commands currently waiting for a callback.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsStarted, m.runsFinished, m.stageErrors, m.dispatches, m.pendingTasks,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted(kind string) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) RunFinished(kind, status string) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveDispatch(cmdType, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(cmdType, outcome).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingTasks.Set(float64(n))
}
