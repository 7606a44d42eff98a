package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldChannel is the standardized structured logging key for synthesis channel numbers.
	FieldChannel = "channel"
	// FieldOSCAddress is the standardized structured logging key for OSC address patterns.
	FieldOSCAddress = "osc_address"
	// FieldEngineState is the standardized structured logging key for engine process lifecycle states.
	FieldEngineState = "engine_state"
	// FieldPID is the standardized structured logging key for engine process identifiers.
	FieldPID = "pid"
	// FieldClientID is the standardized structured logging key for gateway client identifiers.
	FieldClientID = "client_id"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator-facing remediation hints.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldLogSource tags a log event with where the line originated: stdout, stderr, or system.
	FieldLogSource = "log_source"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// Log event sources recognized by the stream hub.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
	SourceSystem = "system"
)
