package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

func TestSetup_NothingExported(t *testing.T) {
	ctx := context.Background()

	p, err := telemetry.Setup(ctx, telemetry.ExportConfig{ServiceName: "syncbridge"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.TracesEnabled())
	assert.False(t, p.MetricsEnabled())
	assert.False(t, p.LogsEnabled())
	assert.NotNil(t, p.Meter())
	assert.False(t, p.LogCore(zapcore.DebugLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, p.ForceFlush(ctx))
	assert.NoError(t, p.Shutdown(ctx))
}

func TestSetup_MetricsOnly(t *testing.T) {
	ctx := context.Background()

	// the gRPC exporter connects lazily, so no collector is needed
	p, err := telemetry.Setup(ctx, telemetry.ExportConfig{
		ServiceName: "syncbridge",
		Endpoint:    "localhost:4317",
		Insecure:    true,
		Metrics:     true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, p.MetricsEnabled())
	assert.False(t, p.TracesEnabled())
	assert.False(t, p.LogsEnabled())

	counter, err := telemetry.NewCounter(p.Meter(), "sync_test_total", "test", "1")
	require.NoError(t, err)
	counter.Inc(ctx)

	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = p.Shutdown(shutdownCtx)
}

func TestSetup_TracesWithSpanProfiles(t *testing.T) {
	ctx := context.Background()
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	p, err := telemetry.Setup(ctx, telemetry.ExportConfig{
		ServiceName:   "syncbridge",
		Endpoint:      "localhost:4317",
		Insecure:      true,
		Traces:        true,
		SamplingRatio: 1,
		SpanProfiles:  true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, p.TracesEnabled())

	_, span := otel.Tracer("test").Start(ctx, "sync.pass")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	shutdownCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(shutdownCtx)
}
