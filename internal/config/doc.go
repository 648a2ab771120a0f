// Package config loads, normalizes, and validates proctor configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PROCTOR_NTFY_TOPIC. The Config type centralizes every knob the daemon and
// CLI need, from the state directory that holds the audit database and IPC
// socket to the ambient noise threshold.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
