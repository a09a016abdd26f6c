package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncMetrics records sync engine counters and run durations
type SyncMetrics struct {
	outcomes    *Counter
	runs        *Counter
	runDuration *Histogram
	runEntities *Counter
	webhooks    *Counter
	pushes      *Counter
	disabled    *Counter
	deliveries  *Counter
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	var err error

	if m.outcomes, err = NewCounter(meter, "sync_entity_outcomes_total",
		"Per-entity apply outcomes", "{entity}"); err != nil {
		return nil, err
	}
	if m.runs, err = NewCounter(meter, "sync_runs_total",
		"Finished sync runs by mode and status", "{run}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "sync_run_duration_seconds",
		Description: "Sync run wall time",
		Unit:        "s",
		Boundaries:  SyncRunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.runEntities, err = NewCounter(meter, "sync_run_entities_total",
		"Entities handled by finished runs", "{entity}"); err != nil {
		return nil, err
	}
	if m.webhooks, err = NewCounter(meter, "sync_webhooks_total",
		"Inbound webhook deliveries by result", "{delivery}"); err != nil {
		return nil, err
	}
	if m.pushes, err = NewCounter(meter, "sync_pushes_total",
		"Outbound pushes by result", "{push}"); err != nil {
		return nil, err
	}
	if m.disabled, err = NewCounter(meter, "sync_entities_disabled_total",
		"Entities whose circuit breaker opened", "{entity}"); err != nil {
		return nil, err
	}
	if m.deliveries, err = NewCounter(meter, "sync_event_deliveries_total",
		"Event bus deliveries by consumer and result", "{delivery}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordOutcome counts one applied entity
func (m *SyncMetrics) RecordOutcome(ctx context.Context, entityType integration.EntityType, outcome integration.ApplyOutcome) {
	m.outcomes.Inc(ctx, AttrEntityType.String(string(entityType)), AttrOutcome.String(string(outcome)))
}

// RecordRun records a finished run
func (m *SyncMetrics) RecordRun(ctx context.Context, run *integration.SyncRun) {
	et := AttrEntityType.String(string(run.EntityType))
	mode := AttrMode.String(string(run.Mode))
	m.runs.Inc(ctx, et, mode, AttrStatus.String(string(run.Status)))
	m.runDuration.RecordDuration(ctx, run.Duration(), et, mode)
	if total := run.Summary.Total(); total > 0 {
		m.runEntities.Add(ctx, int64(total), et, mode)
	}
}

// RecordWebhook counts one webhook delivery
func (m *SyncMetrics) RecordWebhook(ctx context.Context, provider integration.Provider, result string) {
	m.webhooks.Inc(ctx, AttrProvider.String(string(provider)), AttrResult.String(result))
}

// RecordPush counts one outbound push
func (m *SyncMetrics) RecordPush(ctx context.Context, entityType integration.EntityType, result string) {
	m.pushes.Inc(ctx, AttrEntityType.String(string(entityType)), AttrResult.String(result))
}

// RecordDisabled counts one circuit-breaker trip
func (m *SyncMetrics) RecordDisabled(ctx context.Context, entityType integration.EntityType) {
	m.disabled.Inc(ctx, AttrEntityType.String(string(entityType)))
}

// RecordEventDelivery counts one event bus delivery to a consumer
func (m *SyncMetrics) RecordEventDelivery(ctx context.Context, consumer, eventType, result string) {
	m.deliveries.Inc(ctx, AttrConsumer.String(consumer), AttrEventType.String(eventType), AttrResult.String(result))
}
