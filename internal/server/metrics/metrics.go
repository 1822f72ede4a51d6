// Package metrics exposes the server's Prometheus collectors. All recording
// methods are safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teamsync"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheOps        *prometheus.CounterVec
	cacheReady      prometheus.Gauge
	invalidations   *prometheus.CounterVec
	leaseDecisions  *prometheus.CounterVec
	busEvents       *prometheus.CounterVec
	busDropped      prometheus.Counter
	busSubscribers  prometheus.Gauge
	taskRuns        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "operations_total",
			Help: "Cache operations by operation and result.",
		}, []string{"op", "result"}),
		cacheReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "ready",
			Help: "1 while the cache store is connected.",
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "invalidated_keys_total",
			Help: "Keys purged by the invalidator, by pattern family.",
		}, []string{"family"}),
		leaseDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "locks", Name: "decisions_total",
			Help: "Lease acquire/release outcomes.",
		}, []string{"decision"}),
		busEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "events_total",
			Help: "Events published on the bus, by name.",
		}, []string{"event"}),
		busDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "dropped_total",
			Help: "Events not delivered because a subscriber was too slow.",
		}),
		busSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bus", Name: "subscribers",
			Help: "Currently connected bus subscribers.",
		}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tasks", Name: "runs_total",
			Help: "Background task completions by task and result.",
		}, []string{"task", "result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheOps, m.cacheReady, m.invalidations, m.leaseDecisions,
		m.busEvents, m.busDropped, m.busSubscribers, m.taskRuns, m.requestDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CacheOp(op, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) CacheReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.cacheReady.Set(1)
		return
	}
	m.cacheReady.Set(0)
}

func (m *Metrics) Invalidated(family string, keys int) {
	if m == nil || keys <= 0 {
		return
	}
	m.invalidations.WithLabelValues(family).Add(float64(keys))
}

func (m *Metrics) LeaseDecision(decision string) {
	if m == nil {
		return
	}
	m.leaseDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) BusEvent(name string) {
	if m == nil {
		return
	}
	m.busEvents.WithLabelValues(name).Inc()
}

func (m *Metrics) BusDropped() {
	if m == nil {
		return
	}
	m.busDropped.Inc()
}

func (m *Metrics) BusSubscribers(delta int) {
	if m == nil {
		return
	}
	m.busSubscribers.Add(float64(delta))
}

func (m *Metrics) TaskRun(task, result string) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(task, result).Inc()
}

func (m *Metrics) ObserveRequest(route string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, statusLabel(code)).Observe(seconds)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
