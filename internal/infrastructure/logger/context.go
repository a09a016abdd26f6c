package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey     contextKey = "logger"
	requestIDKey  contextKey = "request_id"
	providerKey   contextKey = "provider"
	entityTypeKey contextKey = "entity_type"
	runIDKey      contextKey = "sync_run_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID tags the context with the inbound request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithProvider tags the context with the remote provider being synced
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerKey, provider)
}

// WithEntityType tags the context with the entity type being synced
func WithEntityType(ctx context.Context, entityType string) context.Context {
	return context.WithValue(ctx, entityTypeKey, entityType)
}

// WithRunID tags the context with the id of the current sync run
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func stringValue(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// GetRequestID retrieves the request id from context
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// GetProvider retrieves the provider from context
func GetProvider(ctx context.Context) string { return stringValue(ctx, providerKey) }

// GetEntityType retrieves the entity type from context
func GetEntityType(ctx context.Context) string { return stringValue(ctx, entityTypeKey) }

// GetRunID retrieves the sync run id from context
func GetRunID(ctx context.Context) string { return stringValue(ctx, runIDKey) }

// GetTraceID returns the trace id of the active span, or ""
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// ContextFields returns the correlation fields carried by ctx
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields,
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	for _, key := range []contextKey{requestIDKey, providerKey, entityTypeKey, runIDKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	return fields
}

// L returns the context's logger enriched with its correlation fields.
//
//	logger.L(ctx).Info("page applied", zap.Int("records", n))
func L(ctx context.Context) *zap.Logger {
	return Enrich(ctx, FromContext(ctx))
}

// Enrich adds the correlation fields of ctx to logger
func Enrich(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
