// Package daemon coordinates the long-running grainbridge process and its
// system integration points.
//
// It wires the engine supervisor, command relay, telemetry listener, and
// gateway into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon bridges supervisor state transitions to
// operator notifications, reacts to sound card hotplug via udev, and
// exposes the control surface the IPC server serves.
//
// Keep orchestration logic here: protocol and process details live in
// their own packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
