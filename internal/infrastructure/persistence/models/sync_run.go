package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncRunModel is the persistence model for integration.SyncRun
type SyncRunModel struct {
	ID         uuid.UUID                                    `gorm:"type:uuid;primary_key"`
	EntityType integration.EntityType                       `gorm:"type:varchar(32);not null;index:idx_sync_runs_type_started,priority:1"`
	AccountID  string                                       `gorm:"type:varchar(100);not null"`
	Mode       integration.SyncMode                         `gorm:"type:varchar(20);not null"`
	Status     integration.SyncRunStatus                    `gorm:"type:varchar(20);not null"`
	Summary    datatypes.JSONType[integration.BatchSummary] `gorm:"type:jsonb"`
	Pages      int                                          `gorm:"not null;default:0"`
	Error      string                                       `gorm:"type:text"`
	StartedAt  time.Time                                    `gorm:"not null;index:idx_sync_runs_type_started,priority:2,sort:desc"`
	FinishedAt *time.Time
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *SyncRunModel) ToDomain() *integration.SyncRun {
	return &integration.SyncRun{
		ID:         m.ID,
		EntityType: m.EntityType,
		AccountID:  m.AccountID,
		Mode:       m.Mode,
		Status:     m.Status,
		Summary:    m.Summary.Data(),
		Pages:      m.Pages,
		Error:      m.Error,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncRun
func (m *SyncRunModel) FromDomain(r *integration.SyncRun) {
	m.ID = r.ID
	m.EntityType = r.EntityType
	m.AccountID = r.AccountID
	m.Mode = r.Mode
	m.Status = r.Status
	m.Summary = datatypes.NewJSONType(r.Summary)
	m.Pages = r.Pages
	m.Error = r.Error
	m.StartedAt = r.StartedAt
	m.FinishedAt = r.FinishedAt
}
