// ABOUTME: Prometheus counters for the HTTP API and the live channel
// ABOUTME: Implements realtime.Metrics and is served on the metrics path

package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "souk"

// Metrics holds the gateway's collectors in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connections       prometheus.Gauge
	connectionsTotal  prometheus.Counter
	handshakeFailures *prometheus.CounterVec
	typingRelayed     prometheus.Counter
	eventsRejected    *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	messagesAppended  prometheus.Counter
	idempotentReplays prometheus.Counter
	threadsCreated    prometheus.Counter
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Live channel connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "connections_total",
			Help:      "Live channel connections that completed the handshake.",
		}),
		handshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "handshake_failures_total",
			Help:      "Live channel handshakes rejected, by reason.",
		}, []string{"reason"}),
		typingRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "typing_relayed_total",
			Help:      "Typing indicators relayed to a thread partner.",
		}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "events_rejected_total",
			Help:      "Inbound live events rejected, by reason.",
		}, []string{"reason"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Outbound events dropped because a subscriber buffer was full.",
		}),
		messagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "conversation",
			Name:      "messages_appended_total",
			Help:      "Messages durably appended to a thread.",
		}),
		idempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "conversation",
			Name:      "idempotent_replays_total",
			Help:      "Message posts answered from the idempotency cache.",
		}),
		threadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "conversation",
			Name:      "threads_created_total",
			Help:      "Threads created.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.connectionsTotal,
		m.handshakeFailures,
		m.typingRelayed,
		m.eventsRejected,
		m.eventsDropped,
		m.messagesAppended,
		m.idempotentReplays,
		m.threadsCreated,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	m.connections.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connections.Dec()
}

func (m *Metrics) HandshakeFailed(reason string) {
	m.handshakeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) TypingRelayed() {
	m.typingRelayed.Inc()
}

func (m *Metrics) EventRejected(reason string) {
	m.eventsRejected.WithLabelValues(reason).Inc()
}

// EventDropped counts an event the broadcaster could not deliver.
func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}

// MessageAppended counts a successful message post.
func (m *Metrics) MessageAppended(replayed bool) {
	if replayed {
		m.idempotentReplays.Inc()
		return
	}
	m.messagesAppended.Inc()
}

// ThreadCreated counts a new thread.
func (m *Metrics) ThreadCreated() {
	m.threadsCreated.Inc()
}
