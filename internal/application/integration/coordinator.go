package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CoordinatorConfig holds the sync run parameters
type CoordinatorConfig struct {
	// BatchSize is the number of records committed per store transaction
	BatchSize int
	// PageSize is the number of records requested per remote page
	PageSize int
	// FullSyncPageDelay paces page fetches during full imports
	FullSyncPageDelay time.Duration
	// RefreshLimit caps the number of tracked entities re-fetched per pass
	RefreshLimit int
	// RevalidationLimit caps the entities re-validated per incremental pass
	RevalidationLimit int
	// RunLockTTL bounds how long a crashed run can hold its lock
	RunLockTTL time.Duration
	// CircuitBreaker holds the per-entity failure thresholds
	CircuitBreaker integration.CircuitBreakerPolicy
}

// DefaultCoordinatorConfig returns the default run parameters
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		BatchSize:         50,
		PageSize:          100,
		FullSyncPageDelay: time.Second,
		RefreshLimit:      500,
		RevalidationLimit: 200,
		RunLockTTL:        30 * time.Minute,
		CircuitBreaker:    integration.DefaultCircuitBreakerPolicy(),
	}
}

// Validate checks the configuration
func (c CoordinatorConfig) Validate() error {
	if c.BatchSize <= 0 {
		return errors.New("coordinator: batch size must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("coordinator: page size must be positive")
	}
	if c.FullSyncPageDelay < 0 {
		return errors.New("coordinator: page delay cannot be negative")
	}
	if c.RunLockTTL <= 0 {
		return errors.New("coordinator: run lock TTL must be positive")
	}
	return c.CircuitBreaker.Validate()
}

// CoordinatorOption configures a SyncCoordinator
type CoordinatorOption func(*SyncCoordinator)

// WithRunLocker sets the run locker (default: in-process)
func WithRunLocker(l RunLocker) CoordinatorOption {
	return func(c *SyncCoordinator) {
		c.locker = l
	}
}

// WithSyncMetrics sets the metrics recorder
func WithSyncMetrics(m SyncMetricsRecorder) CoordinatorOption {
	return func(c *SyncCoordinator) {
		c.metrics = m
	}
}

// WithSyncRunRepository enables run history persistence
func WithSyncRunRepository(r integration.SyncRunRepository) CoordinatorOption {
	return func(c *SyncCoordinator) {
		c.runs = r
	}
}

// WithStatusNormalizer overrides the built-in status tables
func WithStatusNormalizer(n *integration.StatusNormalizer) CoordinatorOption {
	return func(c *SyncCoordinator) {
		c.normalizer = n
	}
}

// WithSnapshotDiffer overrides the built-in field allow-lists
func WithSnapshotDiffer(d *integration.SnapshotDiffer) CoordinatorOption {
	return func(c *SyncCoordinator) {
		c.differ = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *SyncCoordinator) {
		c.now = now
	}
}

// SyncCoordinator drives full, incremental and single-entity syncs through
// the validate, normalize, diff, upsert pipeline
type SyncCoordinator struct {
	adapters   *integration.AdapterRegistry
	store      integration.EntityStore
	watermarks integration.WatermarkRepository
	runs       integration.SyncRunRepository
	publisher  shared.EventPublisher
	normalizer *integration.StatusNormalizer
	differ     *integration.SnapshotDiffer
	locker     RunLocker
	metrics    SyncMetricsRecorder
	validate   *validator.Validate
	cfg        CoordinatorConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewSyncCoordinator creates a coordinator
func NewSyncCoordinator(
	adapters *integration.AdapterRegistry,
	store integration.EntityStore,
	watermarks integration.WatermarkRepository,
	publisher shared.EventPublisher,
	cfg CoordinatorConfig,
	logger *zap.Logger,
	opts ...CoordinatorOption,
) *SyncCoordinator {
	c := &SyncCoordinator{
		adapters:   adapters,
		store:      store,
		watermarks: watermarks,
		publisher:  publisher,
		normalizer: integration.DefaultStatusNormalizer(),
		differ:     integration.DefaultSnapshotDiffer(),
		locker:     NewLocalRunLocker(),
		metrics:    noopMetrics{},
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalizer returns the status normalizer in use
func (c *SyncCoordinator) Normalizer() *integration.StatusNormalizer {
	return c.normalizer
}

// Differ returns the snapshot differ in use
func (c *SyncCoordinator) Differ() *integration.SnapshotDiffer {
	return c.differ
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

type runBody func(ctx context.Context, adapter integration.RemoteAdapter, run *integration.SyncRun) error

// FullSync imports every entity of the type from the beginning of the feed.
// An interrupted import resumes from its last checkpointed cursor.
func (c *SyncCoordinator) FullSync(ctx context.Context, entityType integration.EntityType) (*integration.SyncRun, error) {
	return c.execute(ctx, entityType, integration.SyncModeFull, c.fullSync)
}

// IncrementalSync fetches entities newer than the watermark. Without a
// watermark the run is promoted to a full sync.
func (c *SyncCoordinator) IncrementalSync(ctx context.Context, entityType integration.EntityType) (*integration.SyncRun, error) {
	return c.execute(ctx, entityType, integration.SyncModeIncremental, c.incrementalSync)
}

// RefreshTracked re-fetches known, non-terminal entities one by one
func (c *SyncCoordinator) RefreshTracked(ctx context.Context, entityType integration.EntityType) (*integration.SyncRun, error) {
	return c.execute(ctx, entityType, integration.SyncModeRefresh, c.refreshTracked)
}

func (c *SyncCoordinator) execute(ctx context.Context, entityType integration.EntityType, mode integration.SyncMode, body runBody) (*integration.SyncRun, error) {
	adapter, err := c.adapters.ForEntity(entityType)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("sync:%s:%s", entityType, adapter.AccountID())
	release, err := c.locker.Acquire(ctx, lockKey, c.cfg.RunLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("failed to release sync run lock", zap.String("lock", lockKey), zap.Error(err))
		}
	}()

	ctx, span := telemetry.StartServiceSpan(ctx, "sync", string(mode))
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntityType, string(entityType),
		telemetry.SpanAttrAccountID, adapter.AccountID(),
		telemetry.SpanAttrProvider, string(adapter.Provider()),
	)

	run := integration.NewSyncRun(entityType, adapter.AccountID(), mode)
	log := c.logger.With(
		zap.String("run_id", run.ID.String()),
		zap.String("entity_type", string(entityType)),
		zap.String("account_id", adapter.AccountID()),
		zap.String("mode", string(mode)),
	)
	log.Info("sync run started")

	runErr := body(ctx, adapter, run)
	cancelled := runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded))
	run.Finish(runErr, cancelled)

	c.recordRun(ctx, run)

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("pages", run.Pages),
		zap.Int("created", run.Summary.Created),
		zap.Int("updated", run.Summary.Updated),
		zap.Int("unchanged", run.Summary.Unchanged),
		zap.Int("skipped", run.Summary.Skipped+run.Summary.Stale),
		zap.Int("errored", run.Summary.Errored),
		zap.Int("gone", run.Summary.Gone),
		zap.Duration("duration", run.Duration()),
	}
	switch {
	case cancelled:
		log.Warn("sync run cancelled", append(fields, zap.Error(runErr))...)
	case runErr != nil:
		telemetry.RecordError(span, runErr)
		log.Error("sync run failed", append(fields, zap.Error(runErr))...)
	default:
		log.Info("sync run finished", fields...)
	}

	return run, runErr
}

func (c *SyncCoordinator) recordRun(ctx context.Context, run *integration.SyncRun) {
	c.metrics.RecordRun(ctx, run)
	if c.runs == nil {
		return
	}
	if err := c.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Warn("failed to save sync run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

func (c *SyncCoordinator) loadWatermark(ctx context.Context, entityType integration.EntityType, accountID string) (*integration.Watermark, error) {
	wm, err := c.watermarks.Get(ctx, entityType, accountID)
	if errors.Is(err, integration.ErrWatermarkNotFound) {
		return integration.NewWatermark(entityType, accountID), nil
	}
	if err != nil {
		return nil, err
	}
	return wm, nil
}

func (c *SyncCoordinator) fullSync(ctx context.Context, adapter integration.RemoteAdapter, run *integration.SyncRun) error {
	entityType := run.EntityType
	wm, err := c.loadWatermark(ctx, entityType, run.AccountID)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}

	if err := adapter.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	cursor := wm.ResumeCursor
	if cursor != "" {
		c.logger.Info("resuming interrupted full sync",
			zap.String("entity_type", string(entityType)),
			zap.String("cursor", cursor),
		)
	}

	var limiter *rate.Limiter
	if c.cfg.FullSyncPageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(c.cfg.FullSyncPageDelay), 1)
	}

	observed := integration.WatermarkMark{}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		page, err := adapter.FetchPage(ctx, entityType, cursor, c.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", run.Pages+1, err)
		}
		run.Pages++

		summary, mark, err := c.applyRecords(ctx, page.Records, applyOptions{mode: integration.SyncModeFull, importMode: true}, wm.Kind)
		run.Summary.Merge(summary)
		if err != nil {
			return err
		}
		observed = integration.MaxMark(observed, mark)

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		wm.Checkpoint(cursor)
		if err := c.watermarks.Save(ctx, wm); err != nil {
			return fmt.Errorf("checkpoint watermark: %w", err)
		}
	}

	wm.Advance(observed)
	wm.CompleteFullSync(c.now())
	if err := c.watermarks.Save(ctx, wm); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

func (c *SyncCoordinator) incrementalSync(ctx context.Context, adapter integration.RemoteAdapter, run *integration.SyncRun) error {
	entityType := run.EntityType
	wm, err := c.loadWatermark(ctx, entityType, run.AccountID)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	if wm.IsZero() || wm.ResumeCursor != "" {
		c.logger.Info("no committed watermark, promoting incremental sync to full sync",
			zap.String("entity_type", string(entityType)),
		)
		run.Mode = integration.SyncModeFull
		return c.fullSync(ctx, adapter, run)
	}

	if err := adapter.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	observed := wm.Mark()
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := adapter.FetchPage(ctx, entityType, cursor, c.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", run.Pages+1, err)
		}
		run.Pages++

		fresh := make([]*integration.RemoteRecord, 0, len(page.Records))
		reached := false
		for _, rec := range page.Records {
			if wm.Covers(rec) {
				reached = true
				break
			}
			fresh = append(fresh, rec)
		}

		summary, mark, err := c.applyRecords(ctx, fresh, applyOptions{mode: integration.SyncModeIncremental}, wm.Kind)
		run.Summary.Merge(summary)
		if err != nil {
			return err
		}
		observed = integration.MaxMark(observed, mark)

		if reached || !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if wm.Advance(observed) {
		if err := c.watermarks.Save(ctx, wm); err != nil {
			return fmt.Errorf("save watermark: %w", err)
		}
	}

	summary, err := c.revalidate(ctx, entityType, run.AccountID)
	run.Summary.Merge(summary)
	return err
}

// revalidate runs the parent-existence check skipped by imports
func (c *SyncCoordinator) revalidate(ctx context.Context, entityType integration.EntityType, accountID string) (integration.BatchSummary, error) {
	var summary integration.BatchSummary

	entities, err := c.store.ListNeedingRevalidation(ctx, entityType, accountID, c.cfg.RevalidationLimit)
	if err != nil {
		return summary, fmt.Errorf("list entities needing revalidation: %w", err)
	}
	if len(entities) == 0 {
		return summary, nil
	}

	metas := make(map[integration.EntityKey]integration.SyncMetadata, len(entities))
	for _, e := range entities {
		parent := c.parentKey(e.ParentType, e.AccountID, e.ParentExternalID)
		ok, err := c.parentExists(ctx, parent)
		if err != nil {
			return summary, err
		}
		if ok {
			e.NeedsRevalidation = false
			metas[e.Key()] = e.Metadata()
			continue
		}
		c.recordFailure(ctx, e, fmt.Errorf("%w: %s", integration.ErrMissingParent, parent))
		metas[e.Key()] = e.Metadata()
		summary.Add(integration.OutcomeErrored)
	}

	if err := c.store.SetMetadataBatch(ctx, metas); err != nil {
		return summary, fmt.Errorf("save revalidation results: %w", err)
	}
	return summary, nil
}

// parentKey resolves the key of a referenced parent. The parent lives under
// the account of its own provider, which may differ from the child's.
func (c *SyncCoordinator) parentKey(parentType integration.EntityType, childAccountID, parentID string) integration.EntityKey {
	accountID := childAccountID
	if adapter, err := c.adapters.ForEntity(parentType); err == nil {
		accountID = adapter.AccountID()
	}
	return integration.EntityKey{EntityType: parentType, AccountID: accountID, ExternalID: parentID}
}

func (c *SyncCoordinator) parentExists(ctx context.Context, parent integration.EntityKey) (bool, error) {
	if parent.EntityType == "" || parent.ExternalID == "" {
		return true, nil
	}
	return c.store.Exists(ctx, parent)
}

func (c *SyncCoordinator) refreshTracked(ctx context.Context, adapter integration.RemoteAdapter, run *integration.SyncRun) error {
	entityType := run.EntityType
	entities, err := c.store.ListPollable(ctx, integration.PollableQuery{
		EntityType:      entityType,
		AccountID:       run.AccountID,
		ExcludeStatuses: c.normalizer.TerminalStatuses(entityType),
		Limit:           c.cfg.RefreshLimit,
	})
	if err != nil {
		return fmt.Errorf("list pollable entities: %w", err)
	}
	if len(entities) == 0 {
		return nil
	}

	if err := adapter.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	w := c.newBatchWriter(applyOptions{mode: integration.SyncModeRefresh}, entityType.WatermarkKind())
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			run.Summary.Merge(w.summary)
			return err
		}
		if e.IsCircuitOpen() {
			w.summary.Add(integration.OutcomeSkipped)
			continue
		}

		rec, err := adapter.FetchOne(ctx, entityType, e.ExternalID)
		switch {
		case err == nil:
			w.apply(ctx, rec)
		case errors.Is(err, integration.ErrRemoteNotFound):
			w.gone(ctx, e)
		case integration.IsBatchFatal(err):
			run.Summary.Merge(w.summary)
			return fmt.Errorf("fetch %s: %w", e.ExternalID, err)
		default:
			w.fail(ctx, e, err)
		}

		if w.size() >= c.cfg.BatchSize {
			if err := w.flush(ctx); err != nil {
				run.Summary.Merge(w.summary)
				return err
			}
		}
	}

	err = w.flush(ctx)
	run.Summary.Merge(w.summary)
	return err
}

// ---------------------------------------------------------------------------
// Single entity operations
// ---------------------------------------------------------------------------

// ApplyResult describes what happened to one record
type ApplyResult struct {
	Key             integration.EntityKey
	Outcome         integration.ApplyOutcome
	ChangedFields   []string
	CanonicalStatus integration.CanonicalStatus
	Err             error
}

// ResyncEntity fetches one entity and runs it through the pipeline. It is
// the only path that re-admits a disabled entity.
func (c *SyncCoordinator) ResyncEntity(ctx context.Context, entityType integration.EntityType, externalID string) (*ApplyResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "resync")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntityType, string(entityType),
		telemetry.SpanAttrExternalID, externalID,
	)

	adapter, err := c.adapters.ForEntity(entityType)
	if err != nil {
		return nil, err
	}
	key := integration.EntityKey{EntityType: entityType, AccountID: adapter.AccountID(), ExternalID: externalID}

	existing, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := adapter.Authenticate(ctx); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	w := c.newBatchWriter(applyOptions{mode: integration.SyncModeResync, reenable: true}, entityType.WatermarkKind())

	rec, err := adapter.FetchOne(ctx, entityType, externalID)
	switch {
	case err == nil:
		w.apply(ctx, rec)
	case errors.Is(err, integration.ErrRemoteNotFound) && existing != nil:
		w.gone(ctx, existing)
	case errors.Is(err, integration.ErrRemoteNotFound):
		telemetry.RecordError(span, err)
		return nil, integration.NewSyncError(integration.ErrorClassPermanent, "resync", err)
	default:
		telemetry.RecordError(span, err)
		if existing != nil && !integration.IsBatchFatal(err) {
			w.fail(ctx, existing, err)
			if flushErr := w.flush(ctx); flushErr != nil {
				c.logger.Warn("failed to record resync failure", zap.String("key", key.String()), zap.Error(flushErr))
			}
		}
		return nil, err
	}

	if err := w.flush(ctx); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := w.result(key)
	telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, string(result.Outcome))
	if result.Err != nil {
		return result, result.Err
	}
	return result, nil
}

// ApplyInbound runs one out-of-band record (a webhook) through the pipeline
func (c *SyncCoordinator) ApplyInbound(ctx context.Context, rec *integration.RemoteRecord) (*ApplyResult, error) {
	w := c.newBatchWriter(applyOptions{mode: integration.SyncModeWebhook}, rec.EntityType.WatermarkKind())
	w.apply(ctx, rec)
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	return w.result(rec.Key()), nil
}

// MarkGone marks a known entity as removed remotely. Unknown keys are ignored.
func (c *SyncCoordinator) MarkGone(ctx context.Context, key integration.EntityKey) (*ApplyResult, error) {
	existing, err := c.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return &ApplyResult{Key: key, Outcome: integration.OutcomeSkipped}, nil
	}

	w := c.newBatchWriter(applyOptions{mode: integration.SyncModeWebhook}, key.EntityType.WatermarkKind())
	w.gone(ctx, existing)
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	return w.result(key), nil
}

// Lookup returns the local entity for key, or nil if it has never been seen
func (c *SyncCoordinator) Lookup(ctx context.Context, key integration.EntityKey) (*integration.SyncEntity, error) {
	return c.lookup(ctx, key)
}

func (c *SyncCoordinator) lookup(ctx context.Context, key integration.EntityKey) (*integration.SyncEntity, error) {
	e, err := c.store.Get(ctx, key)
	if errors.Is(err, integration.ErrEntityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return e, nil
}

// recordFailure applies the circuit breaker to e and logs at the resulting severity
func (c *SyncCoordinator) recordFailure(ctx context.Context, e *integration.SyncEntity, err error) {
	wasDisabled := e.SyncStatus == integration.SyncStatusDisabled
	severity := e.RecordFailure(err, c.now(), c.cfg.CircuitBreaker)

	fields := []zap.Field{
		zap.String("key", e.Key().String()),
		zap.String("error_class", string(integration.Classify(err))),
		zap.Int("consecutive_errors", e.ConsecutiveErrorCount),
		zap.String("severity", severity.String()),
		zap.Error(err),
	}
	switch severity {
	case integration.SeverityLow:
		c.logger.Info("entity sync failed", fields...)
	case integration.SeverityMedium:
		c.logger.Warn("entity sync failing repeatedly", fields...)
	case integration.SeverityHigh:
		c.logger.Error("entity sync failing persistently", fields...)
	case integration.SeverityCritical:
		c.logger.Error("entity disabled after repeated sync failures", fields...)
	}

	if !wasDisabled && e.SyncStatus == integration.SyncStatusDisabled {
		c.metrics.RecordDisabled(ctx, e.EntityType)
	}
}
