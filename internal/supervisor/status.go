package supervisor

import "time"

// State is the engine process lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Status is a point-in-time snapshot of the supervised engine. PID is set
// exactly when the state is starting, running, or stopping.
type Status struct {
	State           State      `json:"state"`
	PID             *int       `json:"pid,omitempty"`
	Binary          string     `json:"binary"`
	Args            []string   `json:"args,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	Autostart       bool       `json:"autostart"`
	AutoRestart     bool       `json:"auto_restart"`
	RestartPending  bool       `json:"restart_pending"`
	RestartAttempts int        `json:"restart_attempts"`
	MaxAttempts     int        `json:"max_restart_attempts"`
	LastError       string     `json:"last_error,omitempty"`
}

// Running reports whether the engine process is alive.
func (s Status) Running() bool {
	return s.State == StateRunning || s.State == StateStarting || s.State == StateStopping
}
