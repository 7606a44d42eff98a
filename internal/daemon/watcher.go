package daemon

import (
	"context"
	"errors"
	"time"

	"grainbridge/internal/logging"
	"grainbridge/internal/supervisor"
)

// watchEngine turns supervisor state transitions into operator alerts. It
// runs until the subscription channel closes, which happens when the
// supervisor shuts down or the daemon unsubscribes.
func (d *Daemon) watchEngine(events <-chan supervisor.Status) {
	defer close(d.watcherDone)

	prev := supervisor.StateStopped
	for st := range events {
		if st.State != prev {
			d.notifyTransition(st)
		}
		prev = st.State
	}
}

// notifyTransition maps one state change to at most one alert. Delivery
// failures are logged and dropped; alerts never block engine lifecycle.
func (d *Daemon) notifyTransition(st supervisor.Status) {
	timeout := time.Duration(d.cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	switch st.State {
	case supervisor.StateRunning:
		pid := 0
		if st.PID != nil {
			pid = *st.PID
		}
		if st.RestartAttempts > 0 {
			err = d.notifier.NotifyEngineRecovered(ctx, pid, st.RestartAttempts)
		} else {
			err = d.notifier.NotifyEngineStarted(ctx, st.Binary, pid)
		}
	case supervisor.StateError:
		switch {
		case st.RestartPending:
			err = d.notifier.NotifyEngineCrashed(ctx, st.LastError, st.RestartAttempts, st.MaxAttempts)
		case st.RestartAttempts > st.MaxAttempts:
			err = d.notifier.NotifyEngineGaveUp(ctx, st.RestartAttempts-1, st.LastError)
		default:
			err = d.notifier.NotifyError(ctx, errors.New(st.LastError), "engine")
		}
	default:
		return
	}
	if err != nil {
		d.logger.Warn("notification delivery failed",
			logging.Error(err),
			logging.String(logging.FieldEngineState, string(st.State)))
	}
}
