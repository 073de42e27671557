package signaling

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "videochat"

// Metrics holds the relay's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	participants  prometheus.Gauge
	sessions      *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	received      *prometheus.CounterVec
	sent          *prometheus.CounterVec
	errors        *prometheus.CounterVec
	transportGone prometheus.Counter
	slowConsumers prometheus.Counter
}

// NewMetrics registers the relay collectors and the Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants",
			Help:      "Connected participants.",
		}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live call sessions by state.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state changes by target state.",
		}, []string{"state"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Client messages processed by type.",
		}, []string{"type"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages queued to clients by type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error frames sent to clients by code.",
		}, []string{"code"}),
		transportGone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_gone_total",
			Help:      "Deliveries addressed to identities without a connection.",
		}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumers_total",
			Help:      "Connections dropped because their send queue was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.participants,
		m.sessions,
		m.transitions,
		m.received,
		m.sent,
		m.errors,
		m.transportGone,
		m.slowConsumers,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeTransition(_ *Session, from, to State) {
	if from != to && !from.Terminal() {
		m.sessions.WithLabelValues(from.String()).Dec()
	}
	if !to.Terminal() {
		m.sessions.WithLabelValues(to.String()).Inc()
	}
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) observeReceived(msgType string) {
	m.received.WithLabelValues(msgType).Inc()
}

func (m *Metrics) observeSent(d Delivery) {
	m.sent.WithLabelValues(d.Msg.Type).Inc()
	if d.Msg.Error != nil {
		m.errors.WithLabelValues(d.Msg.Error.Code).Inc()
	}
}
