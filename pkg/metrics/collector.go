// Package metrics exposes prometheus counters for device runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the run metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	activeSessions prometheus.Gauge
	gesturesTotal  *prometheus.CounterVec
	stepFailures   *prometheus.CounterVec
	screenshots    *prometheus.CounterVec
	iterations     prometheus.Counter
	runDuration    prometheus.Histogram
}

// NewCollector registers all metrics under namespace on a private registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_runs_total",
			Help:      "Device runs by terminal state",
		}, []string{"state"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Automation sessions currently open",
		}),
		gesturesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gestures_total",
			Help:      "Gestures sent to the automation server",
		}, []string{"kind", "result"}),
		stepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Behavior steps that failed and were skipped",
		}, []string{"step"}),
		screenshots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_total",
			Help:      "Screenshot artifacts by result",
		}, []string{"result"}),
		iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_iterations_total",
			Help:      "Product detail scroll iterations",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_run_duration_seconds",
			Help:      "Wall clock duration of one device run",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RunFinished records a device run reaching a terminal state.
func (c *Collector) RunFinished(state string, seconds float64) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(state).Inc()
	c.runDuration.Observe(seconds)
}

// SessionOpened increments the open-session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

// SessionClosed decrements the open-session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}

// Gesture records one tap or swipe.
func (c *Collector) Gesture(kind string, err error) {
	if c == nil {
		return
	}
	c.gesturesTotal.WithLabelValues(kind, result(err)).Inc()
}

// StepFailed records a swallowed step failure.
func (c *Collector) StepFailed(step string) {
	if c == nil {
		return
	}
	c.stepFailures.WithLabelValues(step).Inc()
}

// Screenshot records a screenshot attempt.
func (c *Collector) Screenshot(err error) {
	if c == nil {
		return
	}
	c.screenshots.WithLabelValues(result(err)).Inc()
}

// Iteration records one product detail loop pass.
func (c *Collector) Iteration() {
	if c == nil {
		return
	}
	c.iterations.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
