// Package supervisor owns the engine process lifecycle: start, stop,
// restart, status snapshots, and the crash watchdog that reschedules
// launches with exponential backoff after unexpected exits.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"grainbridge/internal/config"
	"grainbridge/internal/engine"
	"grainbridge/internal/logging"
)

// ErrStopInProgress is returned by Start while a stop is still draining.
var ErrStopInProgress = errors.New("engine stop in progress")

// Option configures the supervisor.
type Option func(*Supervisor)

// WithLauncher injects a process launcher (primarily for tests).
func WithLauncher(l engine.Launcher) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithClock injects a timer source (primarily for tests).
func WithClock(c Clock) Option {
	return func(s *Supervisor) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithResolver overrides engine binary resolution.
func WithResolver(fn func(string) (string, error)) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.resolve = fn
		}
	}
}

// WithRegisterer registers the supervisor's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Supervisor) {
		s.reg = reg
	}
}

// Supervisor drives exactly one engine process at a time. All state
// transitions happen under its mutex; the PID in any observable snapshot
// is set exactly when the state is starting, running, or stopping.
type Supervisor struct {
	cfg      *config.Config
	logger   *slog.Logger
	hub      *logging.StreamHub
	launcher engine.Launcher
	clock    Clock
	resolve  func(string) (string, error)
	reg      prometheus.Registerer
	metrics  *metrics

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	mu             sync.Mutex
	state          State
	proc           engine.Process
	gen            uint64
	binary         string
	args           []string
	startedAt      time.Time
	stoppedAt      time.Time
	lastErr        string
	attempts       int
	lastCrashAt    time.Time
	autoRestart    bool
	restartPending bool
	pendingTimer   Timer
	stopRequested  bool
	stopDone       chan struct{}

	subs   map[int]chan Status
	nextID int
}

// New builds a supervisor around the configured engine. The process is not
// started; call Start (or let the daemon's spawn-on-boot path do it).
func New(cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub, opts ...Option) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:            cfg,
		logger:         logging.NewComponentLogger(logger, "supervisor"),
		hub:            hub,
		launcher:       engine.ExecLauncher{},
		clock:          systemClock{},
		resolve:        engine.ResolveBinary,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
		state:          StateStopped,
		subs:           make(map[int]chan Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.reg)
	return s
}

// Start launches the engine. Calling Start while the engine is already
// starting or running is a no-op that returns the current status. Spawn
// failure moves the state to error and is not retried by the watchdog.
func (s *Supervisor) Start(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStarting, StateRunning:
		return s.statusLocked(), nil
	case StateStopping:
		return s.statusLocked(), ErrStopInProgress
	}

	// A manual start opens a fresh watchdog run.
	s.attempts = 0
	s.lastCrashAt = time.Time{}
	s.autoRestart = s.cfg.Engine.Restart.Enabled
	s.cancelPendingLocked()

	return s.startLocked()
}

// startLocked performs the spawn. Callers hold s.mu.
func (s *Supervisor) startLocked() (Status, error) {
	binary, err := s.resolve(s.cfg.Engine.Binary)
	if err != nil {
		s.toErrorLocked(fmt.Sprintf("resolve engine binary: %v", err))
		return s.statusLocked(), err
	}

	args := engine.BuildArgs(s.cfg)
	s.state = StateStarting
	s.binary = binary
	s.args = args

	proc, err := s.launcher.Launch(s.shutdownCtx, engine.LaunchSpec{
		Binary:   binary,
		Args:     args,
		OnStdout: s.pipeLine(logging.SourceStdout),
		OnStderr: s.pipeLine(logging.SourceStderr),
	})
	if err != nil {
		s.toErrorLocked(fmt.Sprintf("spawn engine: %v", err))
		return s.statusLocked(), fmt.Errorf("spawn engine: %w", err)
	}

	s.gen++
	s.proc = proc
	s.startedAt = s.clock.Now()
	s.stoppedAt = time.Time{}
	s.lastErr = ""
	s.publishLocked()

	s.state = StateRunning
	s.metrics.starts.Inc()
	s.metrics.up.Set(1)
	s.logger.Info("engine started",
		logging.Int(logging.FieldPID, proc.PID()),
		logging.String("binary", binary),
		logging.String(logging.FieldEngineState, string(StateRunning)))
	s.publishLocked()

	go s.monitor(proc, s.gen)
	return s.statusLocked(), nil
}

func (s *Supervisor) pipeLine(source string) func(string) {
	if s.hub == nil {
		return nil
	}
	return func(line string) {
		s.hub.PublishLine(source, "engine", line)
	}
}

// Stop disables the watchdog, terminates the process gracefully, and waits
// for it to exit, escalating to a kill after the configured grace period.
// With no process running it returns immediately. Concurrent stops share
// the in-flight result; at most one termination signal is sent.
func (s *Supervisor) Stop(ctx context.Context, reason string) (Status, error) {
	s.mu.Lock()
	s.autoRestart = false
	s.cancelPendingLocked()

	switch s.state {
	case StateStopped, StateError:
		st := s.statusLocked()
		s.mu.Unlock()
		return st, nil
	case StateStopping:
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
			return s.Status(), nil
		case <-ctx.Done():
			return s.Status(), ctx.Err()
		}
	}

	proc := s.proc
	s.state = StateStopping
	s.stopRequested = true
	s.stopDone = make(chan struct{})
	done := s.stopDone
	s.logger.Info("stopping engine",
		logging.Int(logging.FieldPID, proc.PID()),
		logging.String("reason", reason))
	s.publishLocked()
	s.mu.Unlock()

	if err := proc.Signal(unix.SIGTERM); err != nil {
		// Signal failure usually means the process is already gone; the
		// monitor goroutine still settles the final state.
		s.logger.Debug("terminate signal failed", logging.Error(err))
	}

	grace := time.Duration(s.cfg.Engine.StopTimeout) * time.Second
	killTimer := s.clock.AfterFunc(grace, func() {
		s.logger.Warn("engine ignored termination signal, killing",
			logging.String(logging.FieldEventType, "engine_stop_escalated"),
			logging.String(logging.FieldErrorHint, "increase engine.stop_timeout if shutdown needs longer"),
			logging.String(logging.FieldImpact, "engine state may not be flushed"))
		_ = proc.Kill()
	})

	select {
	case <-done:
		killTimer.Stop()
		return s.Status(), nil
	case <-ctx.Done():
		killTimer.Stop()
		_ = proc.Kill()
		return s.Status(), ctx.Err()
	}
}

// Restart stops the engine and starts it again. A stop failure with a
// live process aborts the restart.
func (s *Supervisor) Restart(ctx context.Context) (Status, error) {
	st, err := s.Stop(ctx, "restart")
	if err != nil {
		s.mu.Lock()
		alive := s.proc != nil
		s.mu.Unlock()
		if alive {
			return st, fmt.Errorf("stop engine for restart: %w", err)
		}
	}
	return s.Start(ctx)
}

// Status returns a snapshot of the current engine state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Logs returns the most recent log events from the shared hub.
func (s *Supervisor) Logs(limit int) []logging.LogEvent {
	if s.hub == nil {
		return nil
	}
	events, _ := s.hub.Tail(limit)
	return events
}

// Subscribe registers a status observer. Every state transition delivers a
// snapshot; slow observers miss intermediate transitions rather than block
// the supervisor. The returned func unsubscribes and closes the channel.
func (s *Supervisor) Subscribe() (<-chan Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Status, 16)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// Close releases the supervisor. Any live process is killed through the
// launch context; callers wanting a graceful exit should Stop first.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.autoRestart = false
	s.cancelPendingLocked()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub)
	}
	s.mu.Unlock()
	s.shutdownCancel()
}

// monitor waits for one process generation to exit and settles the state.
func (s *Supervisor) monitor(proc engine.Process, gen uint64) {
	<-proc.Done()
	exitErr := proc.Err()

	s.mu.Lock()
	if s.gen != gen {
		// A newer process took over; this exit was already handled.
		s.mu.Unlock()
		return
	}

	s.proc = nil
	s.stoppedAt = s.clock.Now()
	s.metrics.up.Set(0)

	if s.stopRequested {
		s.stopRequested = false
		s.state = StateStopped
		done := s.stopDone
		s.stopDone = nil
		s.logger.Info("engine stopped",
			logging.String("exit", engine.ExitDescription(exitErr)))
		s.publishLocked()
		s.mu.Unlock()
		if done != nil {
			close(done)
		}
		return
	}

	desc := engine.ExitDescription(exitErr)
	s.state = StateError
	s.lastErr = fmt.Sprintf("engine exited unexpectedly (%s)", desc)
	s.metrics.crashes.Inc()
	logging.ErrorWithContext(s.logger, "engine exited unexpectedly", "engine_crash",
		logging.String("exit", desc),
		logging.String(logging.FieldErrorHint, "check engine stderr in the log buffer"),
		logging.String(logging.FieldImpact, "no audio until the engine restarts"))

	s.scheduleRestartLocked()
	s.publishLocked()
	s.mu.Unlock()
}

// scheduleRestartLocked applies the watchdog policy after a crash.
// Callers hold s.mu.
func (s *Supervisor) scheduleRestartLocked() {
	if !s.autoRestart {
		return
	}

	now := s.clock.Now()
	resetWindow := time.Duration(s.cfg.Engine.Restart.ResetAfterSeconds) * time.Second
	if !s.lastCrashAt.IsZero() && now.Sub(s.lastCrashAt) > resetWindow {
		s.attempts = 0
	}
	s.lastCrashAt = now

	s.attempts++
	if s.attempts > s.cfg.Engine.Restart.MaxAttempts {
		s.autoRestart = false
		s.metrics.exhausted.Inc()
		logging.ErrorWithContext(s.logger, "watchdog exhausted, auto-restart disabled", "watchdog_exhausted",
			logging.Int("attempts", s.attempts-1),
			logging.String(logging.FieldErrorHint, "fix the engine, then start it manually"),
			logging.String(logging.FieldImpact, "engine stays down until a manual start"))
		return
	}

	delay := RestartDelay(s.attempts,
		time.Duration(s.cfg.Engine.Restart.BaseDelayMS)*time.Millisecond,
		time.Duration(s.cfg.Engine.Restart.MaxDelayMS)*time.Millisecond)
	s.restartPending = true
	s.logger.Warn("scheduling engine restart",
		logging.String(logging.FieldEventType, "watchdog_restart_scheduled"),
		logging.String(logging.FieldErrorHint, "repeated crashes back off exponentially"),
		logging.String(logging.FieldImpact, "engine down during the backoff delay"),
		logging.Int("attempt", s.attempts),
		logging.Int("max_attempts", s.cfg.Engine.Restart.MaxAttempts),
		logging.Duration("delay", delay))
	s.pendingTimer = s.clock.AfterFunc(delay, s.watchdogFire)
}

// watchdogFire runs when a scheduled restart comes due.
func (s *Supervisor) watchdogFire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingTimer = nil
	s.restartPending = false
	if !s.autoRestart || s.state != StateError {
		return
	}

	s.metrics.restarts.Inc()
	s.logger.Info("watchdog restarting engine",
		logging.Int("attempt", s.attempts))
	if _, err := s.startLocked(); err != nil {
		// Spawn failure ends the watchdog run; the error state it set
		// stands until a manual start.
		s.autoRestart = false
	}
}

func (s *Supervisor) cancelPendingLocked() {
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
		s.pendingTimer = nil
	}
	s.restartPending = false
}

func (s *Supervisor) toErrorLocked(message string) {
	s.state = StateError
	s.lastErr = message
	s.stoppedAt = s.clock.Now()
	s.publishLocked()
}

func (s *Supervisor) statusLocked() Status {
	st := Status{
		State:           s.state,
		Binary:          s.binary,
		Args:            append([]string(nil), s.args...),
		Autostart:       s.cfg.Engine.Autostart,
		AutoRestart:     s.autoRestart,
		RestartPending:  s.restartPending,
		RestartAttempts: s.attempts,
		MaxAttempts:     s.cfg.Engine.Restart.MaxAttempts,
		LastError:       s.lastErr,
	}
	if s.proc != nil {
		switch s.state {
		case StateStarting, StateRunning, StateStopping:
			pid := s.proc.PID()
			st.PID = &pid
		}
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	if !s.stoppedAt.IsZero() {
		t := s.stoppedAt
		st.StoppedAt = &t
	}
	return st
}

func (s *Supervisor) publishLocked() {
	st := s.statusLocked()
	for _, sub := range s.subs {
		select {
		case sub <- st:
		default:
		}
	}
}
