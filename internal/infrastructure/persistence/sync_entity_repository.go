package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormSyncEntityStore implements integration.EntityStore using GORM
type GormSyncEntityStore struct {
	db *gorm.DB
}

// NewGormSyncEntityStore creates a new GormSyncEntityStore
func NewGormSyncEntityStore(db *gorm.DB) *GormSyncEntityStore {
	return &GormSyncEntityStore{db: db}
}

var circuitOpenStatuses = []integration.SyncStatus{integration.SyncStatusDisabled, integration.SyncStatusGone}

func whereKey(db *gorm.DB, key integration.EntityKey) *gorm.DB {
	return db.Where("entity_type = ? AND account_id = ? AND external_id = ?", key.EntityType, key.AccountID, key.ExternalID)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Get finds an entity by its key
func (r *GormSyncEntityStore) Get(ctx context.Context, key integration.EntityKey) (*integration.SyncEntity, error) {
	var model models.SyncEntityModel
	if err := whereKey(r.db.WithContext(ctx), key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrEntityNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Exists reports whether an entity exists for the key
func (r *GormSyncEntityStore) Exists(ctx context.Context, key integration.EntityKey) (bool, error) {
	var count int64
	if err := whereKey(r.db.WithContext(ctx).Model(&models.SyncEntityModel{}), key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPollable returns non-terminal entities, plus those flagged for
// revalidation, that are not circuit-open. Least recently synced first.
func (r *GormSyncEntityStore) ListPollable(ctx context.Context, q integration.PollableQuery) ([]*integration.SyncEntity, error) {
	query := r.db.WithContext(ctx).
		Where("entity_type = ? AND account_id = ?", q.EntityType, q.AccountID).
		Where("sync_status NOT IN ?", circuitOpenStatuses)
	if len(q.ExcludeStatuses) > 0 {
		query = query.Where("(needs_revalidation = ? OR canonical_status NOT IN ?)", true, q.ExcludeStatuses)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return r.find(query.Order("last_synced_at ASC").Order("id ASC"))
}

// ListPendingPush returns entities edited locally after their last sync
func (r *GormSyncEntityStore) ListPendingPush(ctx context.Context, entityType integration.EntityType, limit int) ([]*integration.SyncEntity, error) {
	query := r.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Where("modified_at IS NOT NULL AND (last_synced_at IS NULL OR modified_at > last_synced_at)").
		Where("sync_status NOT IN ?", circuitOpenStatuses).
		Order("modified_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.find(query)
}

// ListNeedingRevalidation returns entities imported without parent checks
func (r *GormSyncEntityStore) ListNeedingRevalidation(ctx context.Context, entityType integration.EntityType, accountID string, limit int) ([]*integration.SyncEntity, error) {
	query := r.db.WithContext(ctx).
		Where("entity_type = ? AND account_id = ? AND needs_revalidation = ?", entityType, accountID, true).
		Where("sync_status NOT IN ?", circuitOpenStatuses).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.find(query)
}

// List returns a page of entities matching the filter and the total count
func (r *GormSyncEntityStore) List(ctx context.Context, filter integration.EntityFilter) ([]*integration.SyncEntity, int64, error) {
	filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.SyncEntityModel{})
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.SyncStatus != "" {
		query = query.Where("sync_status = ?", filter.SyncStatus)
	}
	if filter.MinErrorCount > 0 {
		query = query.Where("consecutive_error_count >= ?", filter.MinErrorCount)
	}
	if filter.NeedsRevalidation != nil {
		query = query.Where("needs_revalidation = ?", *filter.NeedsRevalidation)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortField := ValidateSortField(filter.OrderBy, SyncEntitySortFields, "updated_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)
	entities, err := r.find(query.Order(sortField + " " + sortOrder).Order("id ASC").Offset(filter.Offset()).Limit(filter.PageSize))
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

func (r *GormSyncEntityStore) find(query *gorm.DB) ([]*integration.SyncEntity, error) {
	var rows []models.SyncEntityModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	entities := make([]*integration.SyncEntity, len(rows))
	for i := range rows {
		entities[i] = rows[i].ToDomain()
	}
	return entities, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// SaveBatch upserts all entities in a single transaction. On a key conflict
// the existing row keeps its id and created_at.
func (r *GormSyncEntityStore) SaveBatch(ctx context.Context, entities []*integration.SyncEntity) error {
	if len(entities) == 0 {
		return nil
	}

	rows := make([]*models.SyncEntityModel, len(entities))
	for i, e := range entities {
		rows[i] = models.SyncEntityModelFromDomain(e)
	}

	updateColumns := append(append([]string{}, models.BusinessColumns...), models.MetadataColumns...)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_type"}, {Name: "account_id"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).Create(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to upsert sync entities: %w", err)
		}
		return nil
	})
}

// SetMetadata writes only the sync metadata columns of one entity
func (r *GormSyncEntityStore) SetMetadata(ctx context.Context, key integration.EntityKey, meta integration.SyncMetadata) error {
	return setMetadata(r.db.WithContext(ctx), key, meta)
}

// SetMetadataBatch writes sync metadata for many entities in one transaction
func (r *GormSyncEntityStore) SetMetadataBatch(ctx context.Context, metas map[integration.EntityKey]integration.SyncMetadata) error {
	if len(metas) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, meta := range metas {
			if err := setMetadata(tx, key, meta); err != nil {
				return err
			}
		}
		return nil
	})
}

func setMetadata(db *gorm.DB, key integration.EntityKey, meta integration.SyncMetadata) error {
	// UpdateColumns skips hooks and the updated_at bump
	result := whereKey(db.Model(&models.SyncEntityModel{}), key).UpdateColumns(models.MetadataUpdates(meta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", integration.ErrEntityNotFound, key)
	}
	return nil
}

// ClearLoopGuard resets the loop guard of the given entities
func (r *GormSyncEntityStore) ClearLoopGuard(ctx context.Context, keys []integration.EntityKey) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			if err := whereKey(tx.Model(&models.SyncEntityModel{}), key).
				Where("loop_guard = ?", true).
				UpdateColumn("loop_guard", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

var _ integration.EntityStore = (*GormSyncEntityStore)(nil)
