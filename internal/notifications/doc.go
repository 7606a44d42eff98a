// Package notifications delivers engine lifecycle alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Each alert honors its per-event toggle so operators can mute
// routine starts while keeping crash and give-up alerts loud.
//
// Extend this package if you need alternative transports; the daemon depends
// only on the simple Service interface.
package notifications
