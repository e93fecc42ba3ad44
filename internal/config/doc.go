// Package config loads, normalizes, and validates asyncref configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ASYNCREF_DATABASE and ASYNCREF_EXCLUDE_TABLES. The Config type centralizes
// every knob the CLI needs: where the queue database and run lock live, which
// tables are excluded or workspace-aware, and which external command performs
// the actual reference index recompute.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
