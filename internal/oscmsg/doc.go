// Package oscmsg defines the typed OSC vocabulary exchanged with the
// synthesis engine: outbound command requests with declared argument types,
// per-channel address formatting, and the pure parsers that turn inbound
// telemetry datagrams into hello and scan samples.
//
// Parsing is best-effort by contract. Malformed telemetry yields no sample
// and no error; command validation, by contrast, rejects loudly before
// anything reaches the wire.
package oscmsg
