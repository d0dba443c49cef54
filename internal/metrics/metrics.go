// Package metrics exposes Prometheus counters and histograms for the session
// operations and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session_server"

// OutcomeOK labels successful operations; failures are labelled with their error kind.
const OutcomeOK = "ok"

type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	requests   *prometheus.CounterVec
	swept      prometheus.Counter
}

// New registers every collector on a private registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Session manager operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Session manager operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_records_swept_total",
			Help:      "Expired session records removed by the sweeper.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations,
		m.latency,
		m.requests,
		m.swept,
	)
	return m
}

// ObserveOperation records one manager call.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if outcome == "" {
		outcome = OutcomeOK
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) RecordsSwept(n int64) {
	if n > 0 {
		m.swept.Add(float64(n))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
