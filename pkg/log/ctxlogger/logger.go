package ctxlogger

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

type runIDKey struct{}

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// ContextWithRunID annotates the context with the current rating run.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the rating run ID carried by the context, if any.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	runID, _ := ctx.Value(runIDKey{}).(string)
	return runID
}

// FromContext returns a logger enriched with run metadata from context.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches the provided logger using metadata in the context.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 2)

	name := "unknown"
	if namePtr := serviceName.Load(); namePtr != nil {
		name = *namePtr
	}
	fields = append(fields, zap.String("service", name))

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}

	return base.With(fields...)
}
