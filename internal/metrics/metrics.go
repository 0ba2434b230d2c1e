// Package metrics exposes Prometheus counters for the organizer core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "family_organizer"

// Result labels.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultConflict = "conflict"
)

type Metrics struct {
	registry       *prometheus.Registry
	operations     *prometheus.CounterVec
	joinRetries    prometheus.Counter
	liveClients    prometheus.Gauge
	coordinators   *prometheus.GaugeVec
	itemsDelivered prometheus.Counter
}

// New builds a private registry so several instances can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Core operations by name and result.",
		}, []string{"operation", "result"}),
		joinRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_retries_total",
			Help:      "Optimistic member-list writes retried after a version conflict.",
		}),
		liveClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
		coordinators: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coordinators",
			Help:      "Live sync coordinators by state.",
		}, []string{"state"}),
		itemsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_snapshots_total",
			Help:      "Item collection snapshots delivered to coordinators.",
		}),
	}
}

// Operation records the outcome of a named core operation.
func (m *Metrics) Operation(name, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, result).Inc()
}

func (m *Metrics) JoinRetry() {
	if m == nil {
		return
	}
	m.joinRetries.Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.liveClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.liveClients.Dec()
}

// StateChange moves one coordinator from one state gauge to another. An
// empty from or to means the coordinator is being created or torn down.
func (m *Metrics) StateChange(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.coordinators.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.coordinators.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) ItemSnapshot() {
	if m == nil {
		return
	}
	m.itemsDelivered.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
