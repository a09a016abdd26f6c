package integration

import (
	"context"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncQueryService serves read-only views of sync state for operators
type SyncQueryService struct {
	adapters   *integration.AdapterRegistry
	store      integration.EntityStore
	watermarks integration.WatermarkRepository
	runs       integration.SyncRunRepository
}

// NewSyncQueryService creates a query service
func NewSyncQueryService(
	adapters *integration.AdapterRegistry,
	store integration.EntityStore,
	watermarks integration.WatermarkRepository,
	runs integration.SyncRunRepository,
) *SyncQueryService {
	return &SyncQueryService{
		adapters:   adapters,
		store:      store,
		watermarks: watermarks,
		runs:       runs,
	}
}

// Key resolves the entity key of an external id using the configured account
func (s *SyncQueryService) Key(entityType integration.EntityType, externalID string) (integration.EntityKey, error) {
	adapter, err := s.adapters.ForEntity(entityType)
	if err != nil {
		return integration.EntityKey{}, err
	}
	return integration.EntityKey{EntityType: entityType, AccountID: adapter.AccountID(), ExternalID: externalID}, nil
}

// GetEntity returns one entity
func (s *SyncQueryService) GetEntity(ctx context.Context, entityType integration.EntityType, externalID string) (*EntityResponse, error) {
	key, err := s.Key(entityType, externalID)
	if err != nil {
		return nil, err
	}
	e, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := ToEntityResponse(e)
	return &resp, nil
}

// ListEntities lists entities by sync metadata
func (s *SyncQueryService) ListEntities(ctx context.Context, entityType integration.EntityType, req ListEntitiesRequest) ([]EntityResponse, int64, error) {
	adapter, err := s.adapters.ForEntity(entityType)
	if err != nil {
		return nil, 0, err
	}

	filter := integration.EntityFilter{
		EntityType:        entityType,
		AccountID:         adapter.AccountID(),
		SyncStatus:        req.SyncStatus,
		MinErrorCount:     req.MinErrorCount,
		NeedsRevalidation: req.NeedsRevalidation,
		Page:              req.Page,
		PageSize:          req.PageSize,
		OrderBy:           req.OrderBy,
		OrderDir:          req.OrderDir,
	}
	filter.Normalize()

	entities, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]EntityResponse, len(entities))
	for i, e := range entities {
		out[i] = ToEntityResponse(e)
	}
	return out, total, nil
}

// GetWatermark returns the watermark of an entity type
func (s *SyncQueryService) GetWatermark(ctx context.Context, entityType integration.EntityType) (*WatermarkResponse, error) {
	adapter, err := s.adapters.ForEntity(entityType)
	if err != nil {
		return nil, err
	}
	w, err := s.watermarks.Get(ctx, entityType, adapter.AccountID())
	if err != nil {
		return nil, err
	}
	resp := ToWatermarkResponse(w)
	return &resp, nil
}

// ListRuns returns recent sync runs, optionally for one entity type
func (s *SyncQueryService) ListRuns(ctx context.Context, entityType integration.EntityType, limit int) ([]SyncRunResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	runs, err := s.runs.ListRecent(ctx, entityType, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SyncRunResponse, len(runs))
	for i, r := range runs {
		out[i] = ToSyncRunResponse(r)
	}
	return out, nil
}
