package models

import (
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// WatermarkModel is the persistence model for integration.Watermark
type WatermarkModel struct {
	EntityType          integration.EntityType    `gorm:"type:varchar(32);primaryKey"`
	AccountID           string                    `gorm:"type:varchar(100);primaryKey"`
	Kind                integration.WatermarkKind `gorm:"type:varchar(16);not null"`
	HighID              int64                     `gorm:"not null;default:0"`
	HighTime            *time.Time
	ResumeCursor        string `gorm:"type:text"`
	FullSyncCompletedAt *time.Time
	UpdatedAt           time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WatermarkModel) TableName() string {
	return "sync_watermarks"
}

// ToDomain converts the persistence model to a domain Watermark
func (m *WatermarkModel) ToDomain() *integration.Watermark {
	w := &integration.Watermark{
		EntityType:          m.EntityType,
		AccountID:           m.AccountID,
		Kind:                m.Kind,
		HighID:              m.HighID,
		ResumeCursor:        m.ResumeCursor,
		FullSyncCompletedAt: utcPtr(m.FullSyncCompletedAt),
		UpdatedAt:           m.UpdatedAt,
	}
	if m.HighTime != nil {
		w.HighTime = m.HighTime.UTC()
	}
	return w
}

// FromDomain populates the persistence model from a domain Watermark
func (m *WatermarkModel) FromDomain(w *integration.Watermark) {
	m.EntityType = w.EntityType
	m.AccountID = w.AccountID
	m.Kind = w.Kind
	m.HighID = w.HighID
	m.HighTime = nil
	if !w.HighTime.IsZero() {
		t := w.HighTime
		m.HighTime = &t
	}
	m.ResumeCursor = w.ResumeCursor
	m.FullSyncCompletedAt = w.FullSyncCompletedAt
	m.UpdatedAt = w.UpdatedAt
}
