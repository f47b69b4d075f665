// Package config loads, normalizes, and validates docflow configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts),
// reads TOML files, and honours the DOCFLOW_API_TOKEN and
// DOCFLOW_ADMIN_PASSWORD environment fallbacks. The Config type centralizes
// every knob the daemon and CLI need: data and log directories, the default
// pipeline, background intervals, backups, push notifications and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical step names and clear validation errors.
package config
