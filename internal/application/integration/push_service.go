package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PushOutcome is the result of one push attempt
type PushOutcome string

const (
	PushOutcomePushed             PushOutcome = "pushed"
	PushOutcomeSkippedLoopGuard   PushOutcome = "skipped_loop_guard"
	PushOutcomeSkippedNotModified PushOutcome = "skipped_not_modified"
	PushOutcomeSkippedCircuitOpen PushOutcome = "skipped_circuit_open"
	PushOutcomeSkippedUnsupported PushOutcome = "skipped_unsupported"
	PushOutcomeFailed             PushOutcome = "failed"
)

// PushService sends local edits to the remote system. It is an event
// handler for local modification and inbound change events; both pass the
// same two gates, so inbound changes are never echoed back.
type PushService struct {
	adapters   *integration.AdapterRegistry
	store      integration.EntityStore
	publisher  shared.EventPublisher
	normalizer *integration.StatusNormalizer
	policy     integration.CircuitBreakerPolicy
	metrics    SyncMetricsRecorder
	logger     *zap.Logger
	sweepLimit int
	now        func() time.Time
}

// NewPushService creates a push service
func NewPushService(
	adapters *integration.AdapterRegistry,
	store integration.EntityStore,
	publisher shared.EventPublisher,
	normalizer *integration.StatusNormalizer,
	policy integration.CircuitBreakerPolicy,
	logger *zap.Logger,
) *PushService {
	return &PushService{
		adapters:   adapters,
		store:      store,
		publisher:  publisher,
		normalizer: normalizer,
		policy:     policy,
		metrics:    noopMetrics{},
		logger:     logger,
		sweepLimit: 200,
		now:        time.Now,
	}
}

// SetMetrics sets the metrics recorder
func (s *PushService) SetMetrics(m SyncMetricsRecorder) {
	s.metrics = m
}

// EventTypes implements shared.EventHandler
func (s *PushService) EventTypes() []string {
	return []string{integration.EventTypeEntityModified, integration.EventTypeEntityChanged}
}

// Handle implements shared.EventHandler
func (s *PushService) Handle(ctx context.Context, event shared.DomainEvent) error {
	ev, ok := event.(*integration.EntityChangedEvent)
	if !ok {
		return nil
	}
	_, err := s.PushEntity(ctx, ev.Key())
	return err
}

// PushEntity pushes the entity if it carries an unpushed local edit
func (s *PushService) PushEntity(ctx context.Context, key integration.EntityKey) (PushOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "push", "entity")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntityType, string(key.EntityType),
		telemetry.SpanAttrExternalID, key.ExternalID,
	)

	outcome, err := s.push(ctx, key)
	telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, string(outcome))
	if err != nil {
		telemetry.RecordError(span, err)
	}
	s.metrics.RecordPush(ctx, key.EntityType, string(outcome))
	return outcome, err
}

func (s *PushService) push(ctx context.Context, key integration.EntityKey) (PushOutcome, error) {
	entity, err := s.store.Get(ctx, key)
	if err != nil {
		return PushOutcomeFailed, err
	}

	// Gate 1: an inbound sync is writing this entity
	if entity.LoopGuard {
		s.logger.Debug("push skipped, loop guard set", zap.String("key", key.String()))
		return PushOutcomeSkippedLoopGuard, nil
	}
	// Gate 2: only edits newer than the last sync are pushed
	if !entity.NeedsPush() {
		s.logger.Debug("push skipped, no local modification since last sync", zap.String("key", key.String()))
		return PushOutcomeSkippedNotModified, nil
	}
	if entity.IsCircuitOpen() {
		s.logger.Debug("push skipped, entity circuit open", zap.String("key", key.String()))
		return PushOutcomeSkippedCircuitOpen, nil
	}

	adapter, err := s.adapters.ForEntity(key.EntityType)
	if err != nil {
		return PushOutcomeFailed, err
	}

	req := integration.PushRequest{
		Status: entity.CanonicalStatus,
		Fields: entity.Fields,
	}
	if code, ok := s.normalizer.RemoteCodeFor(key.EntityType, entity.CanonicalStatus); ok {
		req.RemoteStatusCode = code
	}

	startedAt := s.now()
	_, err = adapter.Push(ctx, key.EntityType, key.ExternalID, req)
	if errors.Is(err, integration.ErrPushNotSupported) {
		s.logger.Debug("push not supported for entity type", zap.String("entity_type", string(key.EntityType)))
		return PushOutcomeSkippedUnsupported, nil
	}
	if err != nil {
		severity := entity.RecordFailure(err, s.now(), s.policy)
		if metaErr := s.store.SetMetadata(ctx, key, entity.Metadata()); metaErr != nil {
			s.logger.Warn("failed to record push failure", zap.String("key", key.String()), zap.Error(metaErr))
		}
		log := s.logger.Warn
		if severity >= integration.SeverityHigh {
			log = s.logger.Error
		}
		log("push failed",
			zap.String("key", key.String()),
			zap.String("error_class", string(integration.Classify(err))),
			zap.Int("consecutive_errors", entity.ConsecutiveErrorCount),
			zap.Error(err),
		)
		return PushOutcomeFailed, fmt.Errorf("push %s: %w", key, err)
	}

	// The push confirms the edit: only sync metadata moves
	syncedAt := s.now()
	if entity.ModifiedAt != nil && !syncedAt.After(*entity.ModifiedAt) {
		syncedAt = entity.ModifiedAt.Add(time.Nanosecond)
	}
	entity.MarkSynced(syncedAt)
	if err := s.store.SetMetadata(ctx, key, entity.Metadata()); err != nil {
		return PushOutcomeFailed, fmt.Errorf("record push: %w", err)
	}

	s.logger.Info("pushed local edit",
		zap.String("key", key.String()),
		zap.String("canonical_status", string(entity.CanonicalStatus)),
		zap.Duration("duration", s.now().Sub(startedAt)),
	)
	return PushOutcomePushed, nil
}

// SweepPending re-publishes modification events for entities whose local
// edit was never confirmed by a push
func (s *PushService) SweepPending(ctx context.Context, entityType integration.EntityType) (int, error) {
	entities, err := s.store.ListPendingPush(ctx, entityType, s.sweepLimit)
	if err != nil {
		return 0, fmt.Errorf("list pending pushes: %w", err)
	}

	published := 0
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := s.publisher.Publish(ctx, integration.NewEntityModifiedEvent(e, nil)); err != nil {
			s.logger.Warn("failed to republish pending push", zap.String("key", e.Key().String()), zap.Error(err))
			continue
		}
		published++
	}

	if published > 0 {
		s.logger.Info("republished pending pushes",
			zap.String("entity_type", string(entityType)),
			zap.Int("count", published),
		)
	}
	return published, nil
}

var _ shared.EventHandler = (*PushService)(nil)

// ---------------------------------------------------------------------------
// Local edits
// ---------------------------------------------------------------------------

// LocalEditService applies business edits made on the local side
type LocalEditService struct {
	store      integration.EntityStore
	publisher  shared.EventPublisher
	normalizer *integration.StatusNormalizer
	differ     *integration.SnapshotDiffer
	logger     *zap.Logger
	now        func() time.Time
}

// NewLocalEditService creates a local edit service
func NewLocalEditService(
	store integration.EntityStore,
	publisher shared.EventPublisher,
	normalizer *integration.StatusNormalizer,
	differ *integration.SnapshotDiffer,
	logger *zap.Logger,
) *LocalEditService {
	return &LocalEditService{
		store:      store,
		publisher:  publisher,
		normalizer: normalizer,
		differ:     differ,
		logger:     logger,
		now:        time.Now,
	}
}

// UpdateLocal applies an edit, bumps modifiedAt and publishes a modification event
func (s *LocalEditService) UpdateLocal(
	ctx context.Context,
	key integration.EntityKey,
	fields map[string]any,
	status integration.CanonicalStatus,
) (*integration.SyncEntity, error) {
	if status != "" && !s.normalizer.IsValid(key.EntityType, status) {
		return nil, fmt.Errorf("%w: %s for %s", integration.ErrInvalidStatus, status, key.EntityType)
	}

	entity, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entity.SyncStatus == integration.SyncStatusGone {
		return nil, integration.ErrEntityGone
	}

	before := s.differ.Snapshot(entity)
	entity.ApplyLocalEdit(s.differ.Filter(key.EntityType, fields), status, s.now())
	changed := integration.ChangedFieldNames(s.differ.Diff(before, s.differ.Snapshot(entity)))
	if len(changed) == 0 {
		return entity, nil
	}

	if err := s.store.SaveBatch(ctx, []*integration.SyncEntity{entity}); err != nil {
		return nil, fmt.Errorf("save local edit: %w", err)
	}

	s.logger.Info("local edit saved", zap.String("key", key.String()), zap.Strings("changed_fields", changed))

	if err := s.publisher.Publish(ctx, integration.NewEntityModifiedEvent(entity, changed)); err != nil {
		s.logger.Warn("failed to publish modification event", zap.String("key", key.String()), zap.Error(err))
	}
	return entity, nil
}
