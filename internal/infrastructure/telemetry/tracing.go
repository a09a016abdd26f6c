// Package telemetry wires OpenTelemetry into the sync engine: OTLP
// providers, the zap log bridge, sync and database metrics, and the span
// helpers used by the application services.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for application spans
const TracerName = "syncbridge"

// Span attribute keys
const (
	SpanAttrProvider   = "sync.provider"
	SpanAttrEntityType = "sync.entity_type"
	SpanAttrAccountID  = "sync.account_id"
	SpanAttrExternalID = "sync.external_id"
	SpanAttrOutcome    = "sync.outcome"
	SpanAttrEventID    = "webhook.event_id"
	SpanAttrEventType  = "webhook.event_type"
)

// StartServiceSpan starts an internal span named {service}.{method} on the
// global tracer provider. The caller ends it.
func StartServiceSpan(ctx context.Context, service, method string) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindInternal))
}

// SetAttributes adds alternating key/value attributes to a span. Pairs whose
// key is not a string are dropped.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if key, ok := keyValues[i].(string); ok {
			attrs = append(attrs, toAttribute(key, keyValues[i+1]))
		}
	}
	span.SetAttributes(attrs...)
}

// SetAttribute adds one attribute to a span
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

// RecordError records err on the span and marks it failed
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
