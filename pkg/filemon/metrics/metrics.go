// Package metrics exposes Prometheus instrumentation for a coordinator.
// Every Metrics value owns its registry so independent coordinators never
// collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

const namespace = "filemon"

// Metrics holds the collectors updated by a coordinator. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	passes         *prometheus.CounterVec
	changes        *prometheus.CounterVec
	digests        *prometheus.CounterVec
	manifestWrites *prometheus.CounterVec
	trackedFiles   prometheus.Gauge
	passDuration   prometheus.Histogram
}

// New registers the collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Reconciliation passes by result",
		}, []string{"result"}),
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Tracked file changes by type",
		}, []string{"type"}),
		digests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_total",
			Help:      "Checksum computations by status",
		}, []string{"status"}),
		manifestWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_writes_total",
			Help:      "Manifest writes by status",
		}, []string{"status"}),
		trackedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_files",
			Help:      "Number of files in the manifest",
		}),
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Reconciliation pass duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func (m *Metrics) WithRuntimeCollectors() *Metrics {
	if m == nil {
		return nil
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
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

// ObservePass records the outcome of a pass and the resulting manifest size.
func (m *Metrics) ObservePass(report reconcile.Report, tracked int) {
	if m == nil {
		return
	}

	switch {
	case report.Skipped:
		m.passes.WithLabelValues("skipped").Inc()
		return
	case report.Dirty():
		m.passes.WithLabelValues("changed").Inc()
	default:
		m.passes.WithLabelValues("unchanged").Inc()
	}

	m.changes.WithLabelValues("created").Add(float64(len(report.Created)))
	m.changes.WithLabelValues("updated").Add(float64(len(report.Updated)))
	m.changes.WithLabelValues("touched").Add(float64(len(report.Touched)))
	m.changes.WithLabelValues("deleted").Add(float64(len(report.Deleted)))
	m.trackedFiles.Set(float64(tracked))
	m.passDuration.Observe(report.Duration.Seconds())
}

// ObserveDigest records one checksum computation.
func (m *Metrics) ObserveDigest(ok bool) {
	if m == nil {
		return
	}
	m.digests.WithLabelValues(status(ok)).Inc()
}

// ObserveWrite records one manifest write.
func (m *Metrics) ObserveWrite(err error) {
	if m == nil {
		return
	}
	m.manifestWrites.WithLabelValues(status(err == nil)).Inc()
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
