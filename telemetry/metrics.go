/*
Package telemetry wires metrics, tracing and logging for checkboard.

METRICS (custom registry, served at /metrics):
  checkboard_operations_total{op,result}     Engine operations by outcome kind
  checkboard_operation_duration_seconds{op}  Engine operation latency
  checkboard_conflict_retries_total{op}      Units of work re-run after a conflict
  checkboard_audit_entries_total{entity,action}
  go_*, process_*, go_sql_* (when RegisterDB is called)

TRACING:
  InitTracing installs an OTLP/HTTP exporter when an endpoint is set.
  The Engine and HTTP router pick up the global tracer provider.
*/
package telemetry

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/checkboard/lifecycle"
)

const namespace = "checkboard"

// Metrics records engine activity. It implements lifecycle.Observer.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	audit      *prometheus.CounterVec
}

var _ lifecycle.Observer = (*Metrics)(nil)

// NewMetrics builds the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by result kind.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "Units of work re-run after a store conflict.",
		}, []string{"op"}),
		audit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Committed audit entries by entity and action.",
		}, []string{"entity", "action"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations, m.duration, m.retries, m.audit,
	)
	return m
}

// RegisterDB exports connection pool statistics for db.
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OperationCompleted(op, kind string, elapsed time.Duration) {
	m.operations.WithLabelValues(op, kind).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ConflictRetried(op string) {
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) AuditAppended(entity lifecycle.EntityType, action lifecycle.Action) {
	m.audit.WithLabelValues(string(entity), string(action)).Inc()
}
