package integration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TaskKindWebhookEvent is the queue task kind of accepted webhook events
const TaskKindWebhookEvent = "webhook.event"

// ErrEnqueueFailed is returned when an accepted delivery could not be handed off
var ErrEnqueueFailed = errors.New("webhook: failed to enqueue event")

// IngestStatus is the acknowledgement returned to the webhook sender
type IngestStatus string

const (
	IngestStatusQueued    IngestStatus = "queued"
	IngestStatusDuplicate IngestStatus = "duplicate"
	IngestStatusIgnored   IngestStatus = "ignored"
)

// IngestResult summarizes the handling of one delivery
type IngestResult struct {
	Status     IngestStatus `json:"status"`
	Queued     int          `json:"queued"`
	Duplicates int          `json:"duplicates"`
}

// WebhookTask is the queued unit of webhook work
type WebhookTask struct {
	Event integration.WebhookEvent `json:"event"`
	Body  []byte                   `json:"body,omitempty"`
}

// WebhookServiceConfig holds webhook processing parameters
type WebhookServiceConfig struct {
	// DedupWindow is how long a processed event id is remembered
	DedupWindow time.Duration
}

// DefaultWebhookServiceConfig returns the default configuration
func DefaultWebhookServiceConfig() WebhookServiceConfig {
	return WebhookServiceConfig{DedupWindow: 72 * time.Hour}
}

// WebhookService accepts verified webhook deliveries, hands them to the task
// queue and processes them asynchronously through the sync pipeline
type WebhookService struct {
	adapters    *integration.AdapterRegistry
	coordinator *SyncCoordinator
	idempotency shared.IdempotencyStore
	queue       shared.TaskQueue
	archive     PayloadArchive
	metrics     SyncMetricsRecorder
	cfg         WebhookServiceConfig
	logger      *zap.Logger
}

// NewWebhookService creates a webhook service and registers its task handler
func NewWebhookService(
	adapters *integration.AdapterRegistry,
	coordinator *SyncCoordinator,
	idempotency shared.IdempotencyStore,
	queue shared.TaskQueue,
	cfg WebhookServiceConfig,
	logger *zap.Logger,
) *WebhookService {
	s := &WebhookService{
		adapters:    adapters,
		coordinator: coordinator,
		idempotency: idempotency,
		queue:       queue,
		archive:     noopArchive{},
		metrics:     noopMetrics{},
		cfg:         cfg,
		logger:      logger,
	}
	queue.Register(TaskKindWebhookEvent, s.HandleTask)
	return s
}

// SetArchive sets the archive for payloads whose processing failed
func (s *WebhookService) SetArchive(a PayloadArchive) {
	s.archive = a
}

// SetMetrics sets the metrics recorder
func (s *WebhookService) SetMetrics(m SyncMetricsRecorder) {
	s.metrics = m
}

// Ingest parses a verified delivery, drops already-processed events and
// queues the rest. Returns ErrEnqueueFailed if the sender should retry.
func (s *WebhookService) Ingest(ctx context.Context, provider integration.Provider, body []byte, contentType string) (*IngestResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "ingest")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrProvider, string(provider))

	adapter, err := s.adapters.ForProvider(provider)
	if err != nil {
		return nil, err
	}

	events, err := adapter.ParseWebhook(body, contentType)
	if errors.Is(err, integration.ErrWebhookUnsupportedEvent) {
		s.logger.Debug("ignoring unsupported webhook event", zap.String("provider", string(provider)), zap.Error(err))
		s.metrics.RecordWebhook(ctx, provider, string(IngestStatusIgnored))
		return &IngestResult{Status: IngestStatusIgnored}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordWebhook(ctx, provider, "malformed")
		return nil, err
	}
	if len(events) == 0 {
		s.metrics.RecordWebhook(ctx, provider, string(IngestStatusIgnored))
		return &IngestResult{Status: IngestStatusIgnored}, nil
	}

	result := &IngestResult{}
	for i := range events {
		ev := events[i]
		if err := ev.Validate(); err != nil {
			telemetry.RecordError(span, err)
			s.metrics.RecordWebhook(ctx, provider, "malformed")
			return nil, err
		}

		seen, err := s.idempotency.IsProcessed(ctx, ev.DedupKey())
		if err != nil {
			// Processing dedups again; an unavailable store must not reject the delivery
			s.logger.Warn("idempotency lookup failed", zap.String("key", ev.DedupKey()), zap.Error(err))
		}
		if seen {
			result.Duplicates++
			continue
		}

		task, err := shared.NewTask(TaskKindWebhookEvent, WebhookTask{Event: ev, Body: body})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
		}
		if err := s.queue.Submit(ctx, task); err != nil {
			telemetry.RecordError(span, err)
			s.metrics.RecordWebhook(ctx, provider, "enqueue_failed")
			s.logger.Error("failed to enqueue webhook event",
				zap.String("provider", string(provider)),
				zap.String("event_id", ev.EventID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
		}
		result.Queued++
	}

	result.Status = IngestStatusQueued
	if result.Queued == 0 {
		result.Status = IngestStatusDuplicate
	}
	s.metrics.RecordWebhook(ctx, provider, string(result.Status))
	return result, nil
}

// HandleTask is the shared.TaskHandler for queued webhook events
func (s *WebhookService) HandleTask(ctx context.Context, task shared.Task) error {
	var wt WebhookTask
	if err := task.Decode(&wt); err != nil {
		s.logger.Error("undecodable webhook task dropped", zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}
	// Failures are archived by Process; a retry would be dropped as a duplicate
	_, _ = s.Process(ctx, &wt.Event, wt.Body)
	return nil
}

// Process runs one webhook event through the pipeline. Failures are archived
// and logged; the dedup key stays set and the next poll repairs the entity.
func (s *WebhookService) Process(ctx context.Context, ev *integration.WebhookEvent, body []byte) (*ApplyResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "process")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProvider, string(ev.Provider),
		telemetry.SpanAttrEventID, ev.EventID,
		telemetry.SpanAttrEventType, ev.EventType,
		telemetry.SpanAttrEntityType, string(ev.EntityType),
		telemetry.SpanAttrExternalID, ev.ExternalID,
	)

	log := s.logger.With(
		zap.String("provider", string(ev.Provider)),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
		zap.String("key", ev.Key().String()),
	)

	fresh, err := s.idempotency.MarkProcessed(ctx, ev.DedupKey(), s.cfg.DedupWindow)
	if err != nil {
		log.Warn("idempotency store unavailable, processing anyway", zap.Error(err))
		fresh = true
	}
	if !fresh {
		log.Debug("duplicate webhook event skipped")
		return &ApplyResult{Key: ev.Key(), Outcome: integration.OutcomeSkipped}, nil
	}

	result, err := s.process(ctx, ev)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordWebhook(ctx, ev.Provider, "failed")
		location, archiveErr := s.archive.Archive(ctx, ev.Provider, ev.EventID, body)
		if archiveErr != nil {
			log.Error("failed to archive webhook payload", zap.Error(archiveErr))
		}
		log.Error("webhook processing failed",
			zap.String("error_class", string(integration.Classify(err))),
			zap.String("archived_at", location),
			zap.Error(err),
		)
		return nil, err
	}

	log.Info("webhook processed",
		zap.String("outcome", string(result.Outcome)),
		zap.Strings("changed_fields", result.ChangedFields),
		zap.String("canonical_status", string(result.CanonicalStatus)),
	)
	s.metrics.RecordWebhook(ctx, ev.Provider, "processed")
	return result, nil
}

func (s *WebhookService) process(ctx context.Context, ev *integration.WebhookEvent) (*ApplyResult, error) {
	if ev.Action == integration.WebhookActionDelete {
		return s.coordinator.MarkGone(ctx, ev.Key())
	}

	if ev.Action == integration.WebhookActionMessage {
		existing, err := s.coordinator.Lookup(ctx, ev.Key())
		if err != nil {
			return nil, err
		}
		if existing != nil && slices.Contains(existing.ChildIDs, ev.MessageID) {
			return &ApplyResult{Key: ev.Key(), Outcome: integration.OutcomeUnchanged}, nil
		}
	}

	rec := ev.Record
	if rec == nil || ev.Action == integration.WebhookActionMessage {
		adapter, err := s.adapters.ForEntity(ev.EntityType)
		if err != nil {
			return nil, err
		}
		rec, err = adapter.FetchOne(ctx, ev.EntityType, ev.ExternalID)
		if errors.Is(err, integration.ErrRemoteNotFound) {
			return s.coordinator.MarkGone(ctx, ev.Key())
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate %s: %w", ev.Key(), err)
		}
	}
	if rec.AccountID == "" {
		rec.AccountID = ev.AccountID
	}

	result, err := s.coordinator.ApplyInbound(ctx, rec)
	if err != nil {
		return nil, err
	}
	if result.Err != nil && result.Outcome == integration.OutcomeErrored {
		return result, result.Err
	}
	return result, nil
}
