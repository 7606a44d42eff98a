// Package logging assembles structured slog loggers and formatting helpers used
// across grainbridge services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and feeds every record into the in-memory stream hub so the daemon
// can serve recent log lines over IPC and the gateway without re-reading files.
// Engine stdout/stderr lines are published to the same hub, tagged with their
// source, so one ring buffer holds the combined picture. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
