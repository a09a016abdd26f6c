package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

type applyOptions struct {
	mode integration.SyncMode
	// importMode skips non-critical validation and flags the entity for revalidation
	importMode bool
	// reenable admits disabled and gone entities and resets their circuit
	reenable bool
}

type pendingWrite struct {
	entity  *integration.SyncEntity
	outcome integration.ApplyOutcome
	changed []string
}

// batchWriter accumulates pipeline results and commits them together
type batchWriter struct {
	c    *SyncCoordinator
	opts applyOptions
	kind integration.WatermarkKind

	writes  []*pendingWrite
	index   map[integration.EntityKey]int
	metas   map[integration.EntityKey]integration.SyncMetadata
	results map[integration.EntityKey]*ApplyResult
	summary integration.BatchSummary
	mark    integration.WatermarkMark
}

func (c *SyncCoordinator) newBatchWriter(opts applyOptions, kind integration.WatermarkKind) *batchWriter {
	return &batchWriter{
		c:       c,
		opts:    opts,
		kind:    kind,
		index:   make(map[integration.EntityKey]int),
		metas:   make(map[integration.EntityKey]integration.SyncMetadata),
		results: make(map[integration.EntityKey]*ApplyResult),
	}
}

// applyRecords runs records through the pipeline committing every BatchSize
// records. It returns the highest feed position among committed records.
func (c *SyncCoordinator) applyRecords(
	ctx context.Context,
	records []*integration.RemoteRecord,
	opts applyOptions,
	kind integration.WatermarkKind,
) (integration.BatchSummary, integration.WatermarkMark, error) {
	var (
		total integration.BatchSummary
		mark  integration.WatermarkMark
	)
	for start := 0; start < len(records); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return total, mark, err
		}
		end := min(start+c.cfg.BatchSize, len(records))

		w := c.newBatchWriter(opts, kind)
		for _, rec := range records[start:end] {
			w.apply(ctx, rec)
		}
		err := w.flush(ctx)
		total.Merge(w.summary)
		if err != nil {
			return total, mark, err
		}
		mark = integration.MaxMark(mark, w.mark)
	}
	return total, mark, nil
}

func (w *batchWriter) size() int {
	return len(w.writes) + len(w.metas)
}

func (w *batchWriter) record(ctx context.Context, key integration.EntityKey, outcome integration.ApplyOutcome, e *integration.SyncEntity, changed []string, err error) {
	w.summary.Add(outcome)
	w.c.metrics.RecordOutcome(ctx, key.EntityType, outcome)
	res := &ApplyResult{Key: key, Outcome: outcome, ChangedFields: changed, Err: err}
	if e != nil {
		res.CanonicalStatus = e.CanonicalStatus
	}
	w.results[key] = res
}

func (w *batchWriter) result(key integration.EntityKey) *ApplyResult {
	if r, ok := w.results[key]; ok {
		return r
	}
	return &ApplyResult{Key: key, Outcome: integration.OutcomeSkipped}
}

// apply runs one record through validate, normalize, diff. Failures are
// recorded on the entity and never returned.
func (w *batchWriter) apply(ctx context.Context, rec *integration.RemoteRecord) {
	c := w.c
	if rec == nil {
		return
	}
	key := rec.Key()
	log := c.logger.With(zap.String("key", key.String()), zap.String("mode", string(w.opts.mode)))

	// Critical validation always runs
	if err := c.validate.Struct(rec); err != nil {
		log.Warn("remote record failed validation", zap.Error(err))
		w.record(ctx, key, integration.OutcomeErrored, nil, nil, fmt.Errorf("%w: %v", integration.ErrValidationFailed, err))
		return
	}

	existing, err := c.lookup(ctx, key)
	if err != nil {
		log.Error("failed to load entity", zap.Error(err))
		w.record(ctx, key, integration.OutcomeErrored, nil, nil, err)
		return
	}
	if i, ok := w.index[key]; ok {
		// Same key twice in one batch: the later record builds on the pending write
		existing = w.writes[i].entity.Clone()
	}

	if existing != nil {
		if existing.IsCircuitOpen() && !w.opts.reenable {
			log.Debug("skipping entity with open circuit", zap.String("sync_status", string(existing.SyncStatus)))
			w.record(ctx, key, integration.OutcomeSkipped, existing, nil, integration.ErrCircuitOpen)
			return
		}
		if existing.IsStale(rec) {
			log.Debug("skipping stale remote record",
				zap.Timep("stored_remote_updated_at", existing.RemoteUpdatedAt),
				zap.Timep("incoming_remote_updated_at", rec.RemoteUpdatedAt),
			)
			if w.opts.reenable {
				// The remote answered, so the circuit closes even though the data is older
				existing = existing.Clone()
				existing.ResetCircuit()
				existing.MarkSynced(c.now())
				w.metas[key] = existing.Metadata()
			}
			w.record(ctx, key, integration.OutcomeStale, existing, nil, nil)
			return
		}
	}

	if rec.Deleted {
		if existing == nil {
			w.record(ctx, key, integration.OutcomeSkipped, nil, nil, nil)
			return
		}
		w.gone(ctx, existing)
		return
	}

	// Non-critical validation: referenced parent must exist locally
	needsRevalidation := false
	if rec.HasParent() {
		if w.opts.importMode {
			needsRevalidation = true
		} else {
			parent := c.parentKey(rec.ParentType, rec.AccountID, rec.ParentExternalID)
			ok, err := c.parentExists(ctx, parent)
			if err != nil {
				log.Error("failed to check parent entity", zap.Error(err))
				w.record(ctx, key, integration.OutcomeErrored, existing, nil, err)
				return
			}
			if !ok {
				err := fmt.Errorf("%w: %s", integration.ErrMissingParent, parent)
				if existing != nil {
					w.fail(ctx, existing, err)
					return
				}
				log.Warn("remote record references unknown parent", zap.Error(err))
				w.record(ctx, key, integration.OutcomeErrored, nil, nil, err)
				return
			}
		}
	}

	status, source := c.normalizer.NormalizeWithSource(rec.EntityType, rec.StatusCode, rec.StatusName)
	if source == integration.StatusSourceDefault && (rec.StatusCode != "" || rec.StatusName != "") {
		log.Debug("unmapped remote status, using default",
			zap.String("remote_code", rec.StatusCode),
			zap.String("remote_name", rec.StatusName),
			zap.String("canonical_status", string(status)),
		)
	}

	candidate := existing.Clone()
	if candidate == nil {
		candidate = integration.NewSyncEntity(key)
	}
	filtered := *rec
	filtered.Fields = c.differ.Filter(rec.EntityType, rec.Fields)
	candidate.ApplyRemote(&filtered, status)

	before := c.differ.Snapshot(existing)
	after := c.differ.Snapshot(candidate)

	if w.opts.reenable {
		candidate.ResetCircuit()
	}
	candidate.MarkSynced(c.now())
	candidate.NeedsRevalidation = needsRevalidation
	candidate.LoopGuard = false

	if existing != nil && !c.differ.HasChanged(before, after) {
		// Metadata-only: lastSyncedAt advances, no business write
		w.metas[key] = candidate.Metadata()
		w.record(ctx, key, integration.OutcomeUnchanged, candidate, nil, nil)
		w.observe(rec)
		return
	}

	changes := c.differ.Diff(before, after)
	changed := integration.ChangedFieldNames(changes)
	candidate.LoopGuard = true

	outcome := integration.OutcomeUpdated
	if existing == nil {
		outcome = integration.OutcomeCreated
	}
	if i, ok := w.index[key]; ok {
		if w.writes[i].outcome == integration.OutcomeCreated {
			outcome = integration.OutcomeCreated
		}
		w.writes[i] = &pendingWrite{entity: candidate, outcome: outcome, changed: changed}
	} else {
		w.index[key] = len(w.writes)
		w.writes = append(w.writes, &pendingWrite{entity: candidate, outcome: outcome, changed: changed})
	}
	delete(w.metas, key)

	log.Debug("entity changed", zap.String("outcome", string(outcome)), zap.Strings("changed_fields", changed))
	w.record(ctx, key, outcome, candidate, changed, nil)
	w.observe(rec)
}

func (w *batchWriter) observe(rec *integration.RemoteRecord) {
	w.mark = integration.MaxMark(w.mark, integration.MarkOf(w.kind, rec))
}

// fail records a per-entity failure on a known entity
func (w *batchWriter) fail(ctx context.Context, e *integration.SyncEntity, err error) {
	e = e.Clone()
	w.c.recordFailure(ctx, e, err)
	w.metas[e.Key()] = e.Metadata()
	w.record(ctx, e.Key(), integration.OutcomeErrored, e, nil, err)
}

// gone marks a known entity as removed remotely
func (w *batchWriter) gone(ctx context.Context, e *integration.SyncEntity) {
	e = e.Clone()
	e.MarkGone(w.c.now())
	w.c.logger.Info("entity no longer exists remotely", zap.String("key", e.Key().String()))
	w.metas[e.Key()] = e.Metadata()
	w.record(ctx, e.Key(), integration.OutcomeGone, e, nil, nil)
}

// flush commits the batch: business writes in one transaction, then
// metadata-only updates, then change notifications while the loop guard is
// set, then clears the guard.
func (w *batchWriter) flush(ctx context.Context) error {
	c := w.c
	defer w.reset()

	if len(w.writes) > 0 {
		entities := make([]*integration.SyncEntity, len(w.writes))
		for i, pw := range w.writes {
			entities[i] = pw.entity
		}
		if err := c.store.SaveBatch(ctx, entities); err != nil {
			for _, pw := range w.writes {
				w.summary.Add(integration.OutcomeErrored)
				if pw.outcome == integration.OutcomeCreated {
					w.summary.Created--
				} else {
					w.summary.Updated--
				}
			}
			return fmt.Errorf("save batch: %w", err)
		}
	}

	if len(w.metas) > 0 {
		if err := c.store.SetMetadataBatch(ctx, w.metas); err != nil {
			return fmt.Errorf("save sync metadata: %w", err)
		}
	}

	if len(w.writes) == 0 {
		return nil
	}

	keys := make([]integration.EntityKey, len(w.writes))
	events := make([]shared.DomainEvent, 0, len(w.writes))
	for i, pw := range w.writes {
		keys[i] = pw.entity.Key()
		events = append(events, integration.NewEntityChangedEvent(pw.entity, pw.changed))
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, events...); err != nil {
			c.logger.Warn("failed to publish entity change events", zap.Int("count", len(events)), zap.Error(err))
		}
	}

	if err := c.store.ClearLoopGuard(context.WithoutCancel(ctx), keys); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("clear loop guard: %w", err)
	}
	return nil
}

func (w *batchWriter) reset() {
	w.writes = nil
	w.index = make(map[integration.EntityKey]int)
	w.metas = make(map[integration.EntityKey]integration.SyncMetadata)
}
