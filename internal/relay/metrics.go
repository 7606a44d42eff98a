package relay

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	sent            prometheus.Counter
	rateLimited     prometheus.Counter
	rejected        prometheus.Counter
	transportErrors prometheus.Counter
	ready           prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "relay",
			Name:      "messages_sent_total",
			Help:      "OSC command datagrams written to the engine socket.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "relay",
			Name:      "rate_limited_total",
			Help:      "Commands dropped by the per-key rate limiter.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Commands rejected by validation before reaching the wire.",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "relay",
			Name:      "transport_errors_total",
			Help:      "UDP write failures on the command socket.",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grainbridge",
			Subsystem: "relay",
			Name:      "transport_ready",
			Help:      "1 when the outbound command socket is open and healthy.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.rateLimited, m.rejected, m.transportErrors, m.ready)
	}
	return m
}
