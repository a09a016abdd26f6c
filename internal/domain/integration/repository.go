package integration

import (
	"context"
	"time"
)

// EntityFilter selects entities for listing
type EntityFilter struct {
	EntityType        EntityType
	AccountID         string
	SyncStatus        SyncStatus
	MinErrorCount     int
	NeedsRevalidation *bool
	Page              int
	PageSize          int
	// OrderBy is a column name; stores ignore unknown columns
	OrderBy  string
	OrderDir string
}

// Normalize applies paging defaults
func (f *EntityFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 200 {
		f.PageSize = 200
	}
}

// Offset returns the row offset of the page
func (f EntityFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// PollableQuery selects entities for the refresh pass
type PollableQuery struct {
	EntityType EntityType
	AccountID  string
	// ExcludeStatuses are terminal canonical statuses; entities flagged for
	// revalidation are returned regardless
	ExcludeStatuses []CanonicalStatus
	Limit           int
}

// EntityStore persists local mirrors of remote entities
type EntityStore interface {
	// Get returns ErrEntityNotFound if no entity exists for the key
	Get(ctx context.Context, key EntityKey) (*SyncEntity, error)
	Exists(ctx context.Context, key EntityKey) (bool, error)

	// SaveBatch upserts all entities in one transaction keyed by
	// (entity type, account, external id)
	SaveBatch(ctx context.Context, entities []*SyncEntity) error

	// SetMetadata writes only sync metadata; business fields and
	// ModifiedAt are never touched
	SetMetadata(ctx context.Context, key EntityKey, meta SyncMetadata) error

	// SetMetadataBatch writes sync metadata for many entities in one transaction
	SetMetadataBatch(ctx context.Context, metas map[EntityKey]SyncMetadata) error

	// ClearLoopGuard resets the loop guard of the given entities
	ClearLoopGuard(ctx context.Context, keys []EntityKey) error

	ListPollable(ctx context.Context, query PollableQuery) ([]*SyncEntity, error)

	// ListPendingPush returns entities with ModifiedAt after LastSyncedAt
	ListPendingPush(ctx context.Context, entityType EntityType, limit int) ([]*SyncEntity, error)

	// ListNeedingRevalidation returns entities imported without parent checks
	ListNeedingRevalidation(ctx context.Context, entityType EntityType, accountID string, limit int) ([]*SyncEntity, error)

	List(ctx context.Context, filter EntityFilter) ([]*SyncEntity, int64, error)
}

// WatermarkRepository persists watermarks
type WatermarkRepository interface {
	// Get returns ErrWatermarkNotFound if the type has never been synced
	Get(ctx context.Context, entityType EntityType, accountID string) (*Watermark, error)
	Save(ctx context.Context, w *Watermark) error
}

// SyncRunRepository persists sync run history
type SyncRunRepository interface {
	Save(ctx context.Context, run *SyncRun) error
	ListRecent(ctx context.Context, entityType EntityType, limit int) ([]*SyncRun, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
