package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"grainbridge/internal/config"
	"grainbridge/internal/daemon"
	"grainbridge/internal/daemonctl"
	"grainbridge/internal/gateway"
	"grainbridge/internal/ipc"
	"grainbridge/internal/logging"
	"grainbridge/internal/notifications"
	"grainbridge/internal/presets"
	"grainbridge/internal/relay"
	"grainbridge/internal/supervisor"
	"grainbridge/internal/telemetry"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel   string
	SocketPath string
}

// Run starts the grainbridge daemon runtime loop and blocks until the
// context is cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("grainbridge-%s.log", runID))
	logHub := logging.NewStreamHub(cfg.Logging.BufferSize)

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update grainbridge.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "grainbridge-*.log", Exclude: []string{logPath}},
	)

	pidPath := daemonctl.PIDFilePath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *presets.Store
	if cfg.Presets.Enabled {
		store, err = presets.Open(cfg)
		if err != nil {
			logger.Error("open preset store", logging.Error(err))
			return err
		}
	}

	notifier := notifications.NewService(cfg)
	comp := buildComponents(cfg, logger, logHub)

	d, err := daemon.New(cfg, logger, logHub, comp.supervisor, comp.relay, comp.listener, comp.gateway, store, notifier)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = daemonctl.SocketPath(cfg)
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and gateway bind address"),
			logging.String(logging.FieldImpact, "daemon is idle until started over IPC"),
		)
	}

	<-signalCtx.Done()
	logger.Info("grainbridge daemon shutting down")
	return nil
}

type components struct {
	registry   *prometheus.Registry
	supervisor *supervisor.Supervisor
	relay      *relay.Relay
	listener   *telemetry.Listener
	gateway    *gateway.Server
}

// buildComponents wires the supervisor, relay, telemetry listener, and
// gateway onto one shared registry so /metrics exposes every subsystem.
func buildComponents(cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub) *components {
	registry := prometheus.NewRegistry()
	sup := supervisor.New(cfg, logger, hub, supervisor.WithRegisterer(registry))
	rel := relay.New(cfg, logger, relay.WithRegisterer(registry))
	lis := telemetry.New(cfg, logger, telemetry.WithRegisterer(registry))
	gw := gateway.New(cfg, logger, sup, rel, lis, gateway.WithRegistry(registry))
	return &components{
		registry:   registry,
		supervisor: sup,
		relay:      rel,
		listener:   lis,
		gateway:    gw,
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "grainbridge.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
