// Package logging assembles the slog loggers used across dumpwatch.
//
// It owns the console and JSON handlers, level and output plumbing, the
// shared attribute keys (component, event_type, error_hint, impact,
// cycle_id), and log retention. NewNop provides a silent logger for tests
// and wiring code that must not fail.
package logging
