package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// EntityResponse is a synced entity in API responses
type EntityResponse struct {
	ID                    uuid.UUID                   `json:"id"`
	EntityType            integration.EntityType      `json:"entity_type"`
	AccountID             string                      `json:"account_id"`
	ExternalID            string                      `json:"external_id"`
	CanonicalStatus       integration.CanonicalStatus `json:"canonical_status"`
	RemoteStatusCode      string                      `json:"remote_status_code,omitempty"`
	RemoteStatusName      string                      `json:"remote_status_name,omitempty"`
	Fields                map[string]any              `json:"fields"`
	ChildIDs              []string                    `json:"child_ids,omitempty"`
	ParentType            integration.EntityType      `json:"parent_type,omitempty"`
	ParentExternalID      string                      `json:"parent_external_id,omitempty"`
	SyncStatus            integration.SyncStatus      `json:"sync_status"`
	LastSyncedAt          *time.Time                  `json:"last_synced_at,omitempty"`
	ModifiedAt            *time.Time                  `json:"modified_at,omitempty"`
	RemoteUpdatedAt       *time.Time                  `json:"remote_updated_at,omitempty"`
	SyncErrorMessage      string                      `json:"sync_error_message,omitempty"`
	ConsecutiveErrorCount int                         `json:"consecutive_error_count"`
	NeedsRevalidation     bool                        `json:"needs_revalidation"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}

// ToEntityResponse converts a domain entity
func ToEntityResponse(e *integration.SyncEntity) EntityResponse {
	return EntityResponse{
		ID:                    e.ID,
		EntityType:            e.EntityType,
		AccountID:             e.AccountID,
		ExternalID:            e.ExternalID,
		CanonicalStatus:       e.CanonicalStatus,
		RemoteStatusCode:      e.RemoteStatusCode,
		RemoteStatusName:      e.RemoteStatusName,
		Fields:                e.Fields,
		ChildIDs:              e.ChildIDs,
		ParentType:            e.ParentType,
		ParentExternalID:      e.ParentExternalID,
		SyncStatus:            e.SyncStatus,
		LastSyncedAt:          e.LastSyncedAt,
		ModifiedAt:            e.ModifiedAt,
		RemoteUpdatedAt:       e.RemoteUpdatedAt,
		SyncErrorMessage:      e.SyncErrorMessage,
		ConsecutiveErrorCount: e.ConsecutiveErrorCount,
		NeedsRevalidation:     e.NeedsRevalidation,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

// SyncRunResponse is a sync run in API responses
type SyncRunResponse struct {
	ID         uuid.UUID                 `json:"id"`
	EntityType integration.EntityType    `json:"entity_type"`
	AccountID  string                    `json:"account_id"`
	Mode       integration.SyncMode      `json:"mode"`
	Status     integration.SyncRunStatus `json:"status"`
	Summary    integration.BatchSummary  `json:"summary"`
	Pages      int                       `json:"pages"`
	Error      string                    `json:"error,omitempty"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
	DurationMs int64                     `json:"duration_ms"`
}

// ToSyncRunResponse converts a domain run
func ToSyncRunResponse(r *integration.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:         r.ID,
		EntityType: r.EntityType,
		AccountID:  r.AccountID,
		Mode:       r.Mode,
		Status:     r.Status,
		Summary:    r.Summary,
		Pages:      r.Pages,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// WatermarkResponse is a watermark in API responses
type WatermarkResponse struct {
	EntityType          integration.EntityType    `json:"entity_type"`
	AccountID           string                    `json:"account_id"`
	Kind                integration.WatermarkKind `json:"kind"`
	HighID              int64                     `json:"high_id,omitempty"`
	HighTime            *time.Time                `json:"high_time,omitempty"`
	ResumeCursor        string                    `json:"resume_cursor,omitempty"`
	FullSyncCompletedAt *time.Time                `json:"full_sync_completed_at,omitempty"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// ToWatermarkResponse converts a domain watermark
func ToWatermarkResponse(w *integration.Watermark) WatermarkResponse {
	resp := WatermarkResponse{
		EntityType:          w.EntityType,
		AccountID:           w.AccountID,
		Kind:                w.Kind,
		HighID:              w.HighID,
		ResumeCursor:        w.ResumeCursor,
		FullSyncCompletedAt: w.FullSyncCompletedAt,
		UpdatedAt:           w.UpdatedAt,
	}
	if !w.HighTime.IsZero() {
		t := w.HighTime
		resp.HighTime = &t
	}
	return resp
}

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// UpdateEntityRequest is a local edit
type UpdateEntityRequest struct {
	Status integration.CanonicalStatus `json:"status"`
	Fields map[string]any              `json:"fields"`
}

// ListEntitiesRequest filters the entity listing
type ListEntitiesRequest struct {
	SyncStatus        integration.SyncStatus
	MinErrorCount     int
	NeedsRevalidation *bool
	Page              int
	PageSize          int
	OrderBy           string
	OrderDir          string
}
