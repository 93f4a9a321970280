// Package metrics exposes Prometheus metrics for step execution and the
// reporting server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/ilcdirac/pkg/model"
)

const namespace = "ilcdirac"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	exitCodes    *prometheus.CounterVec
	reports      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Workflow steps run, by kind and terminal state.",
		}, []string{"kind", "state"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of workflow steps.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"kind"}),
		exitCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "application_exit_codes_total",
			Help:      "Application exit codes, by kind.",
		}, []string{"kind", "code"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_reports_total",
			Help:      "Job reports received, by type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method and status.",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(
		m.stepsTotal, m.stepDuration, m.exitCodes, m.reports, m.httpRequests,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// StepFinished records a finished step.
func (m *Metrics) StepFinished(kind model.StepKind, state model.StepState, exitCode int, elapsed time.Duration) {
	m.stepsTotal.WithLabelValues(string(kind), string(state)).Inc()
	m.stepDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	m.exitCodes.WithLabelValues(string(kind), strconv.Itoa(exitCode)).Inc()
}

// ReportReceived counts a status or parameter report.
func (m *Metrics) ReportReceived(kind string) {
	m.reports.WithLabelValues(kind).Inc()
}

// RequestServed counts an HTTP request.
func (m *Metrics) RequestServed(method string, status int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
