// Package config loads, normalizes, and validates grainbridge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GRAINBRIDGE_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, allowing engine launch flags, OSC addressing, and gateway bindings
// to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
