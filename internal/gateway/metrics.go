package gateway

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	connections      prometheus.Counter
	clientsConnected prometheus.Gauge
	messagesIn       prometheus.Counter
	pushes           prometheus.Counter
	pushDrops        prometheus.Counter
	wireErrors       prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "WebSocket connections accepted since startup.",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grainbridge",
			Subsystem: "gateway",
			Name:      "clients_connected",
			Help:      "WebSocket clients currently connected.",
		}),
		messagesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "gateway",
			Name:      "messages_received_total",
			Help:      "Duplex messages received from clients.",
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "gateway",
			Name:      "pushes_total",
			Help:      "Telemetry envelopes delivered to client send queues.",
		}),
		pushDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "gateway",
			Name:      "push_drops_total",
			Help:      "Telemetry envelopes skipped because a client queue was full.",
		}),
		wireErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "gateway",
			Name:      "wire_errors_total",
			Help:      "Malformed or unsupported duplex messages rejected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.clientsConnected, m.messagesIn, m.pushes, m.pushDrops, m.wireErrors)
	}
	return m
}
