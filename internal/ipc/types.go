package ipc

import (
	"grainbridge/internal/daemon"
	"grainbridge/internal/logging"
	"grainbridge/internal/oscmsg"
	"grainbridge/internal/presets"
	"grainbridge/internal/relay"
	"grainbridge/internal/supervisor"
	"grainbridge/internal/telemetry"
)

// StartRequest brings the daemon components up.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest tears the daemon components down. The IPC socket stays up so
// the daemon can be started again without relaunching the process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the daemon's aggregate status snapshot.
type StatusResponse = daemon.Status

// EngineStatus is the supervisor's state snapshot for IPC callers.
type EngineStatus = supervisor.Status

// EngineStartRequest launches the engine process.
type EngineStartRequest struct{}

// EngineStartResponse carries the resulting engine state.
type EngineStartResponse struct {
	Status EngineStatus `json:"status"`
}

// EngineStopRequest stops the engine. Reason is recorded in the daemon log.
type EngineStopRequest struct {
	Reason string `json:"reason,omitempty"`
}

// EngineStopResponse carries the resulting engine state.
type EngineStopResponse struct {
	Status EngineStatus `json:"status"`
}

// EngineRestartRequest stops and relaunches the engine.
type EngineRestartRequest struct{}

// EngineRestartResponse carries the resulting engine state.
type EngineRestartResponse struct {
	Status EngineStatus `json:"status"`
}

// EngineStatusRequest fetches the engine state without touching it.
type EngineStatusRequest struct{}

// EngineStatusResponse carries the engine state.
type EngineStatusResponse struct {
	Status EngineStatus `json:"status"`
}

// SendRequest relays one OSC command to the engine.
type SendRequest struct {
	Command oscmsg.CommandRequest `json:"command"`
}

// SendResponse reports the send outcome.
type SendResponse struct {
	Result relay.Result `json:"result"`
}

// SetChannelRequest sets one control channel value.
type SetChannelRequest struct {
	Channel int     `json:"channel"`
	Value   float64 `json:"value"`
}

// SetChannelResponse reports the send outcome.
type SetChannelResponse struct {
	Result relay.Result `json:"result"`
}

// SetChannelsRequest sets several channel values in one call. Channels are
// sent in ascending order.
type SetChannelsRequest struct {
	Values map[int]float64 `json:"values"`
}

// SetChannelsResponse aggregates the per-channel outcomes.
type SetChannelsResponse struct {
	Batch relay.BatchResult `json:"batch"`
}

// CaptureRequest collects telemetry for a window of time.
type CaptureRequest struct {
	WindowMillis  int  `json:"window_millis"`
	MinSamples    int  `json:"min_samples"`
	TimeoutMillis int  `json:"timeout_millis"`
	Save          bool `json:"save"`
}

// CaptureResponse returns the collected samples and statistics. Path names
// the saved JSON file when the request asked for one.
type CaptureResponse struct {
	Capture telemetry.Capture `json:"capture"`
	Path    string            `json:"path,omitempty"`
}

// Preset mirrors the preset store's record for IPC callers.
type Preset = presets.Preset

// PresetSaveRequest stores a named snapshot of channel values.
type PresetSaveRequest struct {
	Name     string          `json:"name"`
	Channels map[int]float64 `json:"channels"`
}

// PresetSaveResponse returns the stored preset.
type PresetSaveResponse struct {
	Preset Preset `json:"preset"`
}

// PresetApplyRequest replays a stored preset through the relay.
type PresetApplyRequest struct {
	Name string `json:"name"`
}

// PresetApplyResponse reports what the replay delivered.
type PresetApplyResponse struct {
	Outcome presets.ApplyOutcome `json:"outcome"`
}

// PresetListRequest lists stored presets.
type PresetListRequest struct{}

// PresetListResponse contains stored presets sorted by name.
type PresetListResponse struct {
	Presets []Preset `json:"presets"`
}

// PresetDeleteRequest removes a stored preset by name.
type PresetDeleteRequest struct {
	Name string `json:"name"`
}

// PresetDeleteResponse indicates the preset was removed.
type PresetDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// LogEvent is one structured entry from the daemon's log ring.
type LogEvent = logging.LogEvent

// LogTailRequest fetches log events after a sequence cursor. Follow blocks
// up to WaitMillis for new events when none are buffered yet.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// LogTailResponse returns log events and the next cursor.
type LogTailResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
