package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

// setupTestTracer installs an in-memory span recorder as the global provider
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartServiceSpan(context.Background(), "SyncCoordinator", "FullSync")
	telemetry.SetAttribute(span, telemetry.SpanAttrEntityType, "order")
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "SyncCoordinator.FullSync", ended[0].Name())
	assert.Equal(t, trace.SpanKindInternal, ended[0].SpanKind())
	assert.Equal(t, "order", attrMap(ended[0].Attributes())[telemetry.SpanAttrEntityType].AsString())
}

func TestSetAttributes(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "push", "entity")
	telemetry.SetAttributes(span,
		telemetry.SpanAttrExternalID, "9001",
		"sync.page", 3,
		"sync.records", int64(50),
		"sync.loop_guard", true,
		42, "dropped",
	)
	telemetry.SetAttribute(span, "other", struct{ N int }{7})
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Equal(t, "9001", attrs[telemetry.SpanAttrExternalID].AsString())
	assert.Equal(t, int64(3), attrs["sync.page"].AsInt64())
	assert.Equal(t, int64(50), attrs["sync.records"].AsInt64())
	assert.True(t, attrs["sync.loop_guard"].AsBool())
	assert.Equal(t, "{7}", attrs["other"].AsString())
	assert.Len(t, attrs, 5)
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartServiceSpan(context.Background(), "webhook", "process")
	telemetry.RecordError(span, nil)
	telemetry.RecordError(span, errors.New("remote unavailable"))
	span.End()

	s := sr.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "remote unavailable", s.Status().Description)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func TestHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.SetAttributes(nil, "k", "v")
		telemetry.SetAttribute(nil, "k", "v")
		telemetry.RecordError(nil, errors.New("x"))
	})
}
