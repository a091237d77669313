package logging

import (
	"context"

	"go.uber.org/zap"
)

type cycleCtxKey struct{}
type triggerCtxKey struct{}

// WithCycleID attaches a cycle identifier to the context so every log line
// produced during that cycle can be correlated.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleCtxKey{}, cycleID)
}

// CycleIDFromContext returns the cycle identifier, or "" when absent.
func CycleIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(cycleCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTrigger attaches the cycle trigger ("interval", "fs", "api", "startup").
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerCtxKey{}, trigger)
}

// TriggerFromContext returns the cycle trigger, or "" when absent.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(triggerCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if id := CycleIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("cycle_id", id))
	}
	if tr := TriggerFromContext(ctx); tr != "" {
		fields = append(fields, zap.String("trigger", tr))
	}
	return fields
}
