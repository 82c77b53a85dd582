// Package config loads, normalizes, and validates sloppy configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SLOPPY_API_BIND, optionally seeded from a .env file beside the config. The
// Config type centralizes every knob the daemon and CLI need, from executor
// selection to per-subscriber buffering.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
