package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncEntityModel is the persistence model for integration.SyncEntity.
// (entity_type, account_id, external_id) is unique.
type SyncEntityModel struct {
	ID         uuid.UUID              `gorm:"type:uuid;primary_key"`
	EntityType integration.EntityType `gorm:"type:varchar(32);not null;uniqueIndex:idx_sync_entities_key,priority:1;index:idx_sync_entities_status,priority:1"`
	AccountID  string                 `gorm:"type:varchar(100);not null;uniqueIndex:idx_sync_entities_key,priority:2"`
	ExternalID string                 `gorm:"type:varchar(100);not null;uniqueIndex:idx_sync_entities_key,priority:3"`

	CanonicalStatus  integration.CanonicalStatus `gorm:"type:varchar(40);not null;default:''"`
	RemoteStatusCode string                      `gorm:"type:varchar(100)"`
	RemoteStatusName string                      `gorm:"type:varchar(255)"`
	Fields           datatypes.JSONMap           `gorm:"type:jsonb"`
	ChildIDs         datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	ParentType       integration.EntityType      `gorm:"type:varchar(32)"`
	ParentExternalID string                      `gorm:"type:varchar(100)"`
	RemoteUpdatedAt  *time.Time

	SyncStatus            integration.SyncStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_sync_entities_status,priority:2"`
	LastSyncedAt          *time.Time
	ModifiedAt            *time.Time `gorm:"index"`
	SyncErrorMessage      string     `gorm:"type:text"`
	ConsecutiveErrorCount int        `gorm:"not null;default:0"`
	LoopGuard             bool       `gorm:"not null;default:false"`
	NeedsRevalidation     bool       `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncEntityModel) TableName() string {
	return "sync_entities"
}

// BusinessColumns are overwritten by an upsert
var BusinessColumns = []string{
	"canonical_status", "remote_status_code", "remote_status_name", "fields",
	"child_ids", "parent_type", "parent_external_id", "remote_updated_at",
	"modified_at", "updated_at",
}

// MetadataColumns are the sync-internal columns
var MetadataColumns = []string{
	"sync_status", "last_synced_at", "sync_error_message",
	"consecutive_error_count", "loop_guard", "needs_revalidation",
}

// ToDomain converts the persistence model to a domain SyncEntity
func (m *SyncEntityModel) ToDomain() *integration.SyncEntity {
	e := &integration.SyncEntity{
		ID:                    m.ID,
		EntityType:            m.EntityType,
		AccountID:             m.AccountID,
		ExternalID:            m.ExternalID,
		CanonicalStatus:       m.CanonicalStatus,
		RemoteStatusCode:      m.RemoteStatusCode,
		RemoteStatusName:      m.RemoteStatusName,
		Fields:                map[string]any(m.Fields),
		ParentType:            m.ParentType,
		ParentExternalID:      m.ParentExternalID,
		RemoteUpdatedAt:       utcPtr(m.RemoteUpdatedAt),
		SyncStatus:            m.SyncStatus,
		LastSyncedAt:          utcPtr(m.LastSyncedAt),
		ModifiedAt:            utcPtr(m.ModifiedAt),
		SyncErrorMessage:      m.SyncErrorMessage,
		ConsecutiveErrorCount: m.ConsecutiveErrorCount,
		LoopGuard:             m.LoopGuard,
		NeedsRevalidation:     m.NeedsRevalidation,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	if len(m.ChildIDs) > 0 {
		e.ChildIDs = []string(m.ChildIDs)
	}
	return e
}

// FromDomain populates the persistence model from a domain SyncEntity
func (m *SyncEntityModel) FromDomain(e *integration.SyncEntity) {
	m.ID = e.ID
	m.EntityType = e.EntityType
	m.AccountID = e.AccountID
	m.ExternalID = e.ExternalID
	m.CanonicalStatus = e.CanonicalStatus
	m.RemoteStatusCode = e.RemoteStatusCode
	m.RemoteStatusName = e.RemoteStatusName
	m.Fields = datatypes.JSONMap(e.Fields)
	m.ChildIDs = datatypes.JSONSlice[string](e.ChildIDs)
	m.ParentType = e.ParentType
	m.ParentExternalID = e.ParentExternalID
	m.RemoteUpdatedAt = e.RemoteUpdatedAt
	m.SyncStatus = e.SyncStatus
	m.LastSyncedAt = e.LastSyncedAt
	m.ModifiedAt = e.ModifiedAt
	m.SyncErrorMessage = e.SyncErrorMessage
	m.ConsecutiveErrorCount = e.ConsecutiveErrorCount
	m.LoopGuard = e.LoopGuard
	m.NeedsRevalidation = e.NeedsRevalidation
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// MetadataUpdates returns the column map of a metadata-only write
func MetadataUpdates(meta integration.SyncMetadata) map[string]any {
	return map[string]any{
		"sync_status":             meta.SyncStatus,
		"last_synced_at":          meta.LastSyncedAt,
		"sync_error_message":      meta.SyncErrorMessage,
		"consecutive_error_count": meta.ConsecutiveErrorCount,
		"loop_guard":              meta.LoopGuard,
		"needs_revalidation":      meta.NeedsRevalidation,
	}
}

// SyncEntityModelFromDomain creates a persistence model from a domain SyncEntity
func SyncEntityModelFromDomain(e *integration.SyncEntity) *SyncEntityModel {
	m := &SyncEntityModel{}
	m.FromDomain(e)
	return m
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
