package supervisor

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	starts    prometheus.Counter
	crashes   prometheus.Counter
	restarts  prometheus.Counter
	exhausted prometheus.Counter
	up        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "engine",
			Name:      "starts_total",
			Help:      "Engine process launches, manual and watchdog.",
		}),
		crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "engine",
			Name:      "crashes_total",
			Help:      "Unexpected engine exits.",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "engine",
			Name:      "watchdog_restarts_total",
			Help:      "Watchdog-scheduled restarts that fired.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grainbridge",
			Subsystem: "engine",
			Name:      "watchdog_exhausted_total",
			Help:      "Times the watchdog hit its attempt cap and gave up.",
		}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grainbridge",
			Subsystem: "engine",
			Name:      "up",
			Help:      "1 while the engine process is alive.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.starts, m.crashes, m.restarts, m.exhausted, m.up)
	}
	return m
}
