package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"grainbridge/internal/config"
	"grainbridge/internal/gateway"
	"grainbridge/internal/logging"
	"grainbridge/internal/notifications"
	"grainbridge/internal/oscmsg"
	"grainbridge/internal/presets"
	"grainbridge/internal/relay"
	"grainbridge/internal/supervisor"
	"grainbridge/internal/telemetry"
)

// ErrPresetsDisabled is returned by preset operations when the store is
// switched off in configuration.
var ErrPresetsDisabled = errors.New("preset store disabled")

// Daemon coordinates the long-running components and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	hub    *logging.StreamHub

	engine   *supervisor.Supervisor
	relay    *relay.Relay
	listener *telemetry.Listener
	gateway  *gateway.Server
	presets  *presets.Store
	notifier notifications.Service
	monitor  *soundMonitor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	unwatch     func()
	watcherDone chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool              `json:"running"`
	PID            int               `json:"pid"`
	Engine         supervisor.Status `json:"engine"`
	Relay          relay.Stats       `json:"relay"`
	Telemetry      telemetry.Stats   `json:"telemetry"`
	GatewayAddr    string            `json:"gateway_addr"`
	GatewayClients int               `json:"gateway_clients"`
	MonitorActive  bool              `json:"monitor_active"`
	LockPath       string            `json:"lock_path"`
	PresetDB       string            `json:"preset_db,omitempty"`
}

// New constructs a daemon around initialized components. The preset store
// may be nil when presets are disabled; a nil notifier falls back to the
// configured service.
func New(cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub, eng *supervisor.Supervisor, rel *relay.Relay, lis *telemetry.Listener, gw *gateway.Server, store *presets.Store, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || logger == nil || eng == nil || rel == nil || lis == nil || gw == nil {
		return nil, errors.New("daemon requires config, logger, supervisor, relay, listener, and gateway")
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "grainbridged.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		hub:      hub,
		engine:   eng,
		relay:    rel,
		listener: lis,
		gateway:  gw,
		presets:  store,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.monitor = newSoundMonitor(cfg, logger, d.handleSoundDevice)
	return d, nil
}

// Start acquires the daemon lock and brings the components up: command
// relay, telemetry listener, gateway, engine watcher, and device monitor.
// Relay and listener failures leave the daemon running in a degraded state
// where sends report transport_not_ready; a gateway failure aborts startup.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another grainbridge daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.relay.Open(d.ctx); err != nil {
		logging.ErrorWithContext(d.logger, "open command relay", "relay_open_failed",
			logging.Error(err),
			logging.String("target", d.cfg.CommandAddr()),
			logging.String(logging.FieldErrorHint, "check osc.command_host and osc.command_port"),
			logging.String(logging.FieldImpact, "engine commands fail until the daemon restarts"))
	}
	if err := d.listener.Start(d.ctx); err != nil {
		logging.ErrorWithContext(d.logger, "start telemetry listener", "telemetry_bind_failed",
			logging.Error(err),
			logging.String("bind", d.cfg.TelemetryAddr()),
			logging.String(logging.FieldErrorHint, "another process may hold the telemetry port"),
			logging.String(logging.FieldImpact, "no scan data until the daemon restarts"))
	}

	if err := d.gateway.Start(d.ctx); err != nil {
		d.listener.Stop()
		_ = d.relay.Close()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		if unlockErr := d.lock.Unlock(); unlockErr != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
		}
		return fmt.Errorf("start gateway: %w", err)
	}

	events, unwatch := d.engine.Subscribe()
	d.unwatch = unwatch
	d.watcherDone = make(chan struct{})
	go d.watchEngine(events)

	if err := d.monitor.Start(d.ctx); err != nil {
		d.logger.Warn("device monitor unavailable", logging.Error(err))
	}

	if d.cfg.Engine.SpawnOnBoot {
		if _, err := d.engine.Start(d.ctx); err != nil {
			d.logger.Warn("engine spawn on boot failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "engine_boot_spawn_failed"),
				logging.String(logging.FieldErrorHint, "start the engine manually once the cause is fixed"),
				logging.String(logging.FieldImpact, "no audio until the engine starts"))
		}
	}

	d.running.Store(true)
	d.logger.Info("grainbridge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("gateway", d.gatewayAddr()))
	return nil
}

// Stop tears the components down in reverse order and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.monitor.Stop()

	grace := time.Duration(d.cfg.Engine.StopTimeout)*time.Second + 2*time.Second
	stopCtx, cancelStop := context.WithTimeout(context.Background(), grace)
	if _, err := d.engine.Stop(stopCtx, "daemon shutdown"); err != nil {
		d.logger.Warn("engine stop during shutdown", logging.Error(err))
	}
	cancelStop()
	d.engine.Close()

	d.gateway.Stop()

	if d.unwatch != nil {
		d.unwatch()
		d.unwatch = nil
	}
	if d.watcherDone != nil {
		<-d.watcherDone
		d.watcherDone = nil
	}

	d.listener.Stop()
	if err := d.relay.Close(); err != nil {
		d.logger.Debug("relay close", logging.Error(err))
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("grainbridge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.presets != nil {
		return d.presets.Close()
	}
	return nil
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// EngineStart launches the engine process.
func (d *Daemon) EngineStart(ctx context.Context) (supervisor.Status, error) {
	return d.engine.Start(ctx)
}

// EngineStop terminates the engine process and disables the watchdog.
func (d *Daemon) EngineStop(ctx context.Context, reason string) (supervisor.Status, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "requested"
	}
	return d.engine.Stop(ctx, reason)
}

// EngineRestart stops and relaunches the engine process.
func (d *Daemon) EngineRestart(ctx context.Context) (supervisor.Status, error) {
	return d.engine.Restart(ctx)
}

// EngineStatus returns a snapshot of the engine process state.
func (d *Daemon) EngineStatus() supervisor.Status {
	return d.engine.Status()
}

// SendCommand validates and relays one OSC command to the engine.
func (d *Daemon) SendCommand(req oscmsg.CommandRequest) (relay.Result, error) {
	return d.relay.Send(req)
}

// SetChannel relays one normalized channel value.
func (d *Daemon) SetChannel(channel int, value float64) (relay.Result, error) {
	return d.relay.SendChannel(channel, value)
}

// SetChannels relays a set of channel values in ascending channel order.
// Individual outcomes are aggregated; one failure never aborts the rest.
func (d *Daemon) SetChannels(values map[int]float64) relay.BatchResult {
	order := make([]int, 0, len(values))
	for ch := range values {
		order = append(order, ch)
	}
	sort.Ints(order)

	batch := relay.BatchResult{Results: make([]relay.Result, 0, len(order))}
	for _, ch := range order {
		res, _ := d.relay.SendChannel(ch, values[ch])
		batch.Results = append(batch.Results, res)
		switch {
		case res.Sent:
			batch.Sent++
		case res.RateLimited:
			batch.Dropped++
		default:
			batch.Failed++
		}
	}
	return batch
}

// CaptureTelemetry records a window of scan samples. With save set the
// capture is also written as JSON under paths.capture_dir and the file
// path is returned.
func (d *Daemon) CaptureTelemetry(ctx context.Context, window time.Duration, minSamples int, timeout time.Duration, save bool) (telemetry.Capture, string, error) {
	capture, err := d.listener.CaptureWindow(ctx, window, minSamples, timeout)
	if err != nil {
		return capture, "", err
	}
	if !save {
		return capture, "", nil
	}
	path, err := d.writeCapture(capture)
	if err != nil {
		return capture, "", fmt.Errorf("write capture: %w", err)
	}
	d.logger.Info("telemetry capture saved",
		logging.String("path", path),
		logging.Int("samples", capture.Stats.Count))
	return capture, path, nil
}

func (d *Daemon) writeCapture(capture telemetry.Capture) (string, error) {
	dir := strings.TrimSpace(d.cfg.Paths.CaptureDir)
	if dir == "" {
		return "", errors.New("capture directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("capture-%s.json", time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	data, err := json.MarshalIndent(capture, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// SavePreset stores a named channel snapshot.
func (d *Daemon) SavePreset(ctx context.Context, name string, channels map[int]float64) (presets.Preset, error) {
	store, err := d.presetStore()
	if err != nil {
		return presets.Preset{}, err
	}
	return store.Save(ctx, name, channels)
}

// ApplyPreset loads a preset and replays it through the relay.
func (d *Daemon) ApplyPreset(ctx context.Context, name string) (presets.ApplyOutcome, error) {
	store, err := d.presetStore()
	if err != nil {
		return presets.ApplyOutcome{}, err
	}
	outcome, err := store.Apply(ctx, name, d.relay)
	if err != nil {
		return outcome, err
	}
	d.logger.Info("preset applied",
		logging.String("preset", name),
		logging.Int("sent", outcome.Sent),
		logging.Int("dropped", outcome.Dropped),
		logging.Int("failed", outcome.Failed))
	return outcome, nil
}

// ListPresets returns all stored presets ordered by name.
func (d *Daemon) ListPresets(ctx context.Context) ([]presets.Preset, error) {
	store, err := d.presetStore()
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// DeletePreset removes a stored preset.
func (d *Daemon) DeletePreset(ctx context.Context, name string) error {
	store, err := d.presetStore()
	if err != nil {
		return err
	}
	return store.Delete(ctx, name)
}

func (d *Daemon) presetStore() (*presets.Store, error) {
	if d.presets == nil {
		return nil, ErrPresetsDisabled
	}
	return d.presets, nil
}

// FetchLogs returns buffered log events after the given sequence. With wait
// set the call blocks until new events arrive or ctx expires.
func (d *Daemon) FetchLogs(ctx context.Context, since uint64, limit int, wait bool) ([]logging.LogEvent, uint64, error) {
	return d.hub.Fetch(ctx, since, limit, wait)
}

// TestNotification sends a test alert using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		Engine:         d.engine.Status(),
		Relay:          d.relay.Stats(),
		Telemetry:      d.listener.Stats(),
		GatewayAddr:    d.gatewayAddr(),
		GatewayClients: d.gateway.ClientCount(),
		MonitorActive:  d.monitor.Running(),
		LockPath:       d.lockPath,
	}
	if d.presets != nil {
		st.PresetDB = d.presets.Path()
	}
	return st
}

func (d *Daemon) gatewayAddr() string {
	if addr := d.gateway.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// handleSoundDevice reacts to sound card hotplug. A card appearing while
// the engine sits in error state usually means the device it lost is back,
// so the daemon retries the start; a removal is logged because the engine
// will notice on its own.
func (d *Daemon) handleSoundDevice(ctx context.Context, action, device string) {
	switch action {
	case "add", "change":
		if d.engine.Status().State != supervisor.StateError {
			return
		}
		d.logger.Info("sound device appeared, starting engine",
			logging.String("device", device),
			logging.String(logging.FieldEventType, "device_recovery_start"))
		if _, err := d.engine.Start(ctx); err != nil {
			d.logger.Warn("engine start after device event failed",
				logging.Error(err),
				logging.String("device", device))
		}
	case "remove":
		d.logger.Warn("sound device removed",
			logging.String("device", device),
			logging.String(logging.FieldImpact, "engine may lose its audio backend"))
	}
}
