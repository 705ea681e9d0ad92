// Package metrics exposes Prometheus collectors for the provisioning queue,
// the store pipelines and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefleet"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec

	queuePending prometheus.Gauge
	queueRunning prometheus.Gauge

	teardownsTotal *prometheus.CounterVec
	orphansSwept   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provisioning_runs_total",
				Help:      "Total number of finished provisioning runs",
			},
			[]string{"engine", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provisioning_run_duration_seconds",
				Help:      "Duration of provisioning runs in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 180, 300, 600},
			},
			[]string{"engine", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provisioning_step_duration_seconds",
				Help:      "Duration of individual pipeline steps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 3, 9),
			},
			[]string{"step", "status"},
		),
		queuePending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_pending",
				Help:      "Provisioning runs waiting for a slot",
			},
		),
		queueRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_running",
				Help:      "Provisioning runs currently executing",
			},
		),
		teardownsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardowns_total",
				Help:      "Total number of finished store teardowns",
			},
			[]string{"outcome"},
		),
		orphansSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphaned_stores_swept_total",
				Help:      "Stores marked Failed after their provisioning run was lost",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsTotal,
		m.runDuration,
		m.stepDuration,
		m.queuePending,
		m.queueRunning,
		m.teardownsTotal,
		m.orphansSwept,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// RecordRun records a finished provisioning run.
func (m *Metrics) RecordRun(engine string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	o := outcome(err)
	m.runsTotal.WithLabelValues(engine, o).Inc()
	m.runDuration.WithLabelValues(engine, o).Observe(duration.Seconds())
}

// RecordStep records the duration of one pipeline step.
func (m *Metrics) RecordStep(step, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

// SetQueue publishes the queue depth.
func (m *Metrics) SetQueue(pending, running int) {
	if m == nil {
		return
	}
	m.queuePending.Set(float64(pending))
	m.queueRunning.Set(float64(running))
}

// RecordTeardown records a finished teardown.
func (m *Metrics) RecordTeardown(err error) {
	if m == nil {
		return
	}
	m.teardownsTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordOrphans counts stores failed by the orphan sweep.
func (m *Metrics) RecordOrphans(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphansSwept.Add(float64(n))
}

// RecordHTTPRequest records one served request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry returns the underlying registry.
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
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
