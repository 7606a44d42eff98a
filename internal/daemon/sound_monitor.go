package daemon

import (
	"context"
	"strings"
	"sync"

	"log/slog"

	"github.com/pilebones/go-udev/netlink"

	"grainbridge/internal/config"
	"grainbridge/internal/logging"
)

// soundMonitor listens for udev netlink events on the sound subsystem so
// the daemon notices ALSA cards coming and going. USB interfaces drop off
// and reappear; a crashed engine usually means its device vanished, so a
// fresh card is the moment to retry.
type soundMonitor struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler func(ctx context.Context, action, device string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newSoundMonitor creates a monitor for sound card hotplug events. Returns
// nil when the monitor is disabled in configuration.
func newSoundMonitor(cfg *config.Config, logger *slog.Logger, handler func(ctx context.Context, action, device string)) *soundMonitor {
	if cfg == nil || !cfg.DeviceMonitor.Enabled {
		return nil
	}
	return &soundMonitor{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "sound-monitor"),
		handler: handler,
	}
}

// Start begins listening for udev netlink events. Connection failure is
// non-fatal; the daemon runs without hotplug detection.
func (m *soundMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; sound card hotplug detection disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "engine will not restart automatically on device recovery"))
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("sound device monitor started",
		logging.String(logging.FieldEventType, "sound_monitor_started"))
	return nil
}

// Stop shuts down the monitor.
func (m *soundMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("sound device monitor stopped")
}

// Running reports whether the monitor is active.
func (m *soundMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *soundMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldImpact, "hotplug detection may be affected"))
		}
	}
}

// buildMatcher selects sound subsystem card events:
// SUBSYSTEM=sound, ACTION=add|remove|change.
func (m *soundMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

// handleEvent forwards card-level events to the handler. The sound
// subsystem also emits per-node events (controlC0, pcmC0D0p); only the
// card container is interesting here.
func (m *soundMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	card := soundCardName(uevent)
	if card == "" {
		return
	}

	m.logger.Info("sound device event",
		logging.String(logging.FieldEventType, "sound_device_event"),
		logging.String("action", string(uevent.Action)),
		logging.String("card", card))

	if m.handler != nil {
		m.handler(ctx, string(uevent.Action), card)
	}
}

// soundCardName extracts the card identifier ("card0") from a uevent,
// returning "" for non-card nodes.
func soundCardName(uevent netlink.UEvent) string {
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	base := devpath[strings.LastIndex(devpath, "/")+1:]
	if !strings.HasPrefix(base, "card") {
		return ""
	}
	return base
}
