package logging

import (
	"context"
	"log/slog"
)

// Standard attribute keys shared by every component.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldCycleID   = "cycle_id"
	FieldArtifact  = "artifact"
	FieldSessionID = "session_id"
)

type cycleKey struct{}

// WithCycleID returns a context carrying the poll cycle identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleKey{}, id)
}

// CycleID extracts the poll cycle identifier, if any.
func CycleID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(cycleKey{}).(string)
	return id
}

// WithContext decorates logger with identifiers stored on ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id := CycleID(ctx); id != "" {
		return logger.With(String(FieldCycleID, id))
	}
	return logger
}
