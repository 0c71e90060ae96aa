// Package metrics exposes reconciliation counters to Prometheus.
//
// A Recorder owns its registry, so tests and multiple sessions in one
// process never collide on the default registerer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "envgraph"

// Pass outcomes used as label values.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
)

// Recorder records reconciliation metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	mutations     *prometheus.CounterVec
	edges         *prometheus.CounterVec
	warnings      *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	nodes         prometheus.Gauge
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Reconciliation passes by outcome",
		}, []string{"outcome"}),
		passDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25},
		}, []string{"outcome"}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_mutations_total",
			Help:      "Nodes created, updated and deleted by reconciliation",
		}, []string{"op"}),
		edges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edge_changes_total",
			Help:      "Edges added and removed by inference",
		}, []string{"op"}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Recovered reconciliation errors by code",
		}, []string{"code"}),
		confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Dependency confirmations by outcome",
		}, []string{"outcome"}),
		nodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Nodes in the committed tree",
		}),
	}
}

// ObservePass counts a pass and its duration.
func (r *Recorder) ObservePass(outcome string, d time.Duration) {
	r.passes.WithLabelValues(outcome).Inc()
	r.passDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveMutations counts node mutations of a committed pass.
func (r *Recorder) ObserveMutations(created, updated, deleted int) {
	r.mutations.WithLabelValues("create").Add(float64(created))
	r.mutations.WithLabelValues("update").Add(float64(updated))
	r.mutations.WithLabelValues("delete").Add(float64(deleted))
}

// ObserveEdges counts inferred edge changes.
func (r *Recorder) ObserveEdges(added, removed int) {
	r.edges.WithLabelValues("add").Add(float64(added))
	r.edges.WithLabelValues("remove").Add(float64(removed))
}

// ObserveWarning counts one recovered error.
func (r *Recorder) ObserveWarning(code string) {
	r.warnings.WithLabelValues(code).Inc()
}

// ObserveConfirmation counts one dependency confirmation.
func (r *Recorder) ObserveConfirmation(outcome string) {
	r.confirmations.WithLabelValues(outcome).Inc()
}

// SetNodes records the committed node count.
func (r *Recorder) SetNodes(n int) {
	r.nodes.Set(float64(n))
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
