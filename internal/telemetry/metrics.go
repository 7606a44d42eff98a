package telemetry

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	packets        prometheus.Counter
	scans          prometheus.Counter
	hellos         prometheus.Counter
	ignored        prometheus.Counter
	parseErrors    prometheus.Counter
	readErrors     prometheus.Counter
	subscriberDrop prometheus.Counter
	lastActivity   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "packets_received_total",
			Help:      "Total UDP packets received on the telemetry socket.",
		}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "scan_samples_total",
			Help:      "Scan samples accepted into the ring buffer.",
		}),
		hellos: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "hello_announcements_total",
			Help:      "Engine hello announcements received.",
		}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "ignored_messages_total",
			Help:      "OSC messages addressed to something this listener does not handle.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "parse_errors_total",
			Help:      "Datagrams or scan payloads that could not be decoded.",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "read_errors_total",
			Help:      "Socket read errors on the telemetry socket.",
		}),
		subscriberDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "subscriber_drops_total",
			Help:      "Events dropped because a subscriber channel was full.",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grainbridge",
			Subsystem: "telemetry",
			Name:      "last_activity_timestamp_seconds",
			Help:      "Unix timestamp of the most recent telemetry packet.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.packets, m.scans, m.hellos, m.ignored,
			m.parseErrors, m.readErrors, m.subscriberDrop, m.lastActivity)
	}
	return m
}
