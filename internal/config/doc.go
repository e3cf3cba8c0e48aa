// Package config loads, normalizes, and validates dumpwatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DUMPWATCH_SMTP_PASSWORD. The Provider persists the defaults on first run and
// hands out copies so the watch controller never shares mutable state with
// whoever edits the file.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a canonical dump suffix, and clear validation errors.
package config
