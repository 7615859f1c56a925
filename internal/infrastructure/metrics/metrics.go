// Package metrics exposes Prometheus instrumentation for the ledger.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sompos/internal/core/alarm"
	"sompos/internal/domain/settlement"
)

const namespace = "sompos"

// Metrics holds every collector of a process.
type Metrics struct {
	service  string
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SettlementOps      *prometheus.CounterVec
	SettlementDuration *prometheus.HistogramVec
	LockContention     *prometheus.CounterVec

	Alarms *prometheus.CounterVec

	OutboxMessages *prometheus.CounterVec
	ReconcileRuns  *prometheus.CounterVec
	ReconcileDrift *prometheus.CounterVec
}

var (
	_ settlement.Observer = (*Metrics)(nil)
	_ alarm.Sink          = (*Metrics)(nil)
)

// New creates a Metrics instance with its own registry.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	constLabels := prometheus.Labels{"service": service}
	m := &Metrics{
		service:  service,
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),

		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: constLabels,
		}),

		SettlementOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "settlement",
			Name:        "operations_total",
			Help:        "Settlement engine operations by outcome",
			ConstLabels: constLabels,
		}, []string{"operation", "status"}),

		SettlementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "settlement",
			Name:        "duration_seconds",
			Help:        "Settlement engine operation latency",
			ConstLabels: constLabels,
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),

		LockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "settlement",
			Name:        "lock_contention_total",
			Help:        "Settlement lock waits that timed out",
			ConstLabels: constLabels,
		}, []string{"operation"}),

		Alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "consistency_alarms_total",
			Help:        "Ledger invariant breaches detected at runtime",
			ConstLabels: constLabels,
		}, []string{"kind"}),

		OutboxMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "outbox",
			Name:        "messages_total",
			Help:        "Outbox deliveries by event type and outcome",
			ConstLabels: constLabels,
		}, []string{"event_type", "status"}),

		ReconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "reconcile",
			Name:        "runs_total",
			Help:        "Stock aggregate reconciliation runs by outcome",
			ConstLabels: constLabels,
		}, []string{"scope", "status"}),

		ReconcileDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "reconcile",
			Name:        "corrected_aggregates_total",
			Help:        "Aggregates rewritten because they drifted from the batch ledger",
			ConstLabels: constLabels,
		}, []string{"scope"}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.SettlementOps, m.SettlementDuration, m.LockContention,
		m.Alarms, m.OutboxMessages, m.ReconcileRuns, m.ReconcileDrift,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe implements settlement.Observer.
func (m *Metrics) Observe(op, status string, elapsed time.Duration) {
	m.SettlementOps.WithLabelValues(op, status).Inc()
	m.SettlementDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// LockContended implements settlement.Observer.
func (m *Metrics) LockContended(op string) {
	m.LockContention.WithLabelValues(op).Inc()
}

// Raise implements alarm.Sink.
func (m *Metrics) Raise(_ context.Context, a alarm.Alarm) {
	m.Alarms.WithLabelValues(string(a.Kind)).Inc()
}

// ObserveHTTP records a finished request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveOutbox records one outbox delivery attempt.
func (m *Metrics) ObserveOutbox(eventType string, err error) {
	status := "published"
	if err != nil {
		status = "failed"
	}
	m.OutboxMessages.WithLabelValues(eventType, status).Inc()
}

// ObserveReconcile records a reconciliation run and how many aggregates it fixed.
func (m *Metrics) ObserveReconcile(scope string, corrected int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ReconcileRuns.WithLabelValues(scope, status).Inc()
	if corrected > 0 {
		m.ReconcileDrift.WithLabelValues(scope).Add(float64(corrected))
	}
}

// RegisterGaugeFunc exposes a value sampled at scrape time, such as a
// circuit breaker state or pool statistic.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": m.service},
	}, fn))
}

func statusClass(code int) string {
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
