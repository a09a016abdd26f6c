package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormSyncRunRepository implements integration.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Save inserts or updates a run
func (r *GormSyncRunRepository) Save(ctx context.Context, run *integration.SyncRun) error {
	var model models.SyncRunModel
	model.FromDomain(run)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "summary", "pages", "error", "finished_at"}),
	}).Create(&model).Error
}

// ListRecent returns the latest runs, newest first. An empty entity type lists all types.
func (r *GormSyncRunRepository) ListRecent(ctx context.Context, entityType integration.EntityType, limit int) ([]*integration.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}

	var rows []models.SyncRunModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]*integration.SyncRun, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToDomain()
	}
	return runs, nil
}

// DeleteBefore removes runs started before the cutoff
func (r *GormSyncRunRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("started_at < ?", before).Delete(&models.SyncRunModel{})
	return result.RowsAffected, result.Error
}

var _ integration.SyncRunRepository = (*GormSyncRunRepository)(nil)
