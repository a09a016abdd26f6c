package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/event"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

var (
	_ appintegration.SyncMetricsRecorder = (*telemetry.SyncMetrics)(nil)
	_ event.DeliveryRecorder             = (*telemetry.SyncMetrics)(nil)
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// sumWhere totals an int64 counter over data points carrying all attrs
func sumWhere(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	m, ok := findMetric(t, reader, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		matches := true
		for _, a := range attrs {
			v, found := dp.Attributes.Value(a.Key)
			if !found || v != a.Value {
				matches = false
				break
			}
		}
		if matches {
			total += dp.Value
		}
	}
	return total
}

func TestSyncMetrics(t *testing.T) {
	reader, mp := newTestMeter(t)
	m, err := telemetry.NewSyncMetrics(mp.Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordOutcome(ctx, integration.EntityTypeOrder, integration.OutcomeCreated)
	m.RecordOutcome(ctx, integration.EntityTypeOrder, integration.OutcomeCreated)
	m.RecordOutcome(ctx, integration.EntityTypeOrder, integration.OutcomeStale)
	m.RecordWebhook(ctx, integration.ProviderOrderAPI, "accepted")
	m.RecordPush(ctx, integration.EntityTypeQuote, "failed")
	m.RecordDisabled(ctx, integration.EntityTypeProof)
	m.RecordEventDelivery(ctx, "push", integration.EventTypeEntityModified, "duplicate")

	run := integration.NewSyncRun(integration.EntityTypeOrder, "acct-1", integration.SyncModeFull)
	run.Summary.Add(integration.OutcomeCreated)
	run.Summary.Add(integration.OutcomeErrored)
	run.Finish(errors.New("page 3 failed"), false)
	m.RecordRun(ctx, run)

	order := telemetry.AttrEntityType.String("order")
	assert.Equal(t, int64(2), sumWhere(t, reader, "sync_entity_outcomes_total", order, telemetry.AttrOutcome.String("created")))
	assert.Equal(t, int64(1), sumWhere(t, reader, "sync_entity_outcomes_total", telemetry.AttrOutcome.String("stale")))
	assert.Equal(t, int64(1), sumWhere(t, reader, "sync_webhooks_total",
		telemetry.AttrProvider.String("order_api"), telemetry.AttrResult.String("accepted")))
	assert.Equal(t, int64(1), sumWhere(t, reader, "sync_pushes_total", telemetry.AttrEntityType.String("quote")))
	assert.Equal(t, int64(1), sumWhere(t, reader, "sync_entities_disabled_total", telemetry.AttrEntityType.String("proof")))
	assert.Equal(t, int64(1), sumWhere(t, reader, "sync_event_deliveries_total",
		telemetry.AttrConsumer.String("push"), telemetry.AttrResult.String("duplicate")))
	assert.Equal(t, int64(1), sumWhere(t, reader, "sync_runs_total", order,
		telemetry.AttrMode.String("full"), telemetry.AttrStatus.String(string(run.Status))))
	assert.Equal(t, int64(2), sumWhere(t, reader, "sync_run_entities_total", order))

	durations, ok := findMetric(t, reader, "sync_run_duration_seconds")
	require.True(t, ok)
	hist, ok := durations.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}
