package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

// GormWatermarkRepository implements integration.WatermarkRepository using GORM
type GormWatermarkRepository struct {
	db *gorm.DB
}

// NewGormWatermarkRepository creates a new GormWatermarkRepository
func NewGormWatermarkRepository(db *gorm.DB) *GormWatermarkRepository {
	return &GormWatermarkRepository{db: db}
}

// Get finds the watermark of an entity type and account
func (r *GormWatermarkRepository) Get(ctx context.Context, entityType integration.EntityType, accountID string) (*integration.Watermark, error) {
	var model models.WatermarkModel
	if err := r.db.WithContext(ctx).
		Where("entity_type = ? AND account_id = ?", entityType, accountID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrWatermarkNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the watermark. Monotonicity is enforced by the domain type.
func (r *GormWatermarkRepository) Save(ctx context.Context, w *integration.Watermark) error {
	var model models.WatermarkModel
	model.FromDomain(w)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_type"}, {Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "high_id", "high_time", "resume_cursor", "full_sync_completed_at", "updated_at",
		}),
	}).Create(&model).Error
}

var _ integration.WatermarkRepository = (*GormWatermarkRepository)(nil)
