package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/scheduler"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
)

// SyncJobTrigger submits sync jobs outside the schedule
type SyncJobTrigger interface {
	TriggerManualSync(entityType integration.EntityType, mode scheduler.JobMode) (*scheduler.SyncJob, error)
}

// SyncJobHistory exposes recently finished scheduler jobs
type SyncJobHistory interface {
	GetJobHistory(limit int) []scheduler.SyncJob
	GetJobHistoryByEntityType(entityType integration.EntityType, limit int) []scheduler.SyncJob
}

// EntityResyncer re-fetches one entity from its remote system
type EntityResyncer interface {
	ResyncEntity(ctx context.Context, entityType integration.EntityType, externalID string) (*appintegration.ApplyResult, error)
}

// SyncQuery serves read-only sync state
type SyncQuery interface {
	Key(entityType integration.EntityType, externalID string) (integration.EntityKey, error)
	GetEntity(ctx context.Context, entityType integration.EntityType, externalID string) (*appintegration.EntityResponse, error)
	ListEntities(ctx context.Context, entityType integration.EntityType, req appintegration.ListEntitiesRequest) ([]appintegration.EntityResponse, int64, error)
	GetWatermark(ctx context.Context, entityType integration.EntityType) (*appintegration.WatermarkResponse, error)
	ListRuns(ctx context.Context, entityType integration.EntityType, limit int) ([]appintegration.SyncRunResponse, error)
}

// LocalEditor applies local edits that are pushed to the remote system
type LocalEditor interface {
	UpdateLocal(ctx context.Context, key integration.EntityKey, fields map[string]any, status integration.CanonicalStatus) (*integration.SyncEntity, error)
}

// ---------------------------------------------------------------------------
// Request / response types
// ---------------------------------------------------------------------------

// ListEntitiesQuery holds the entity listing filters
type ListEntitiesQuery struct {
	dto.ListRequest
	SyncStatus        string `form:"sync_status" binding:"omitempty,sync_status"`
	MinErrorCount     int    `form:"min_error_count" binding:"omitempty,min=0"`
	NeedsRevalidation *bool  `form:"needs_revalidation"`
}

// HistoryQuery limits history listings
type HistoryQuery struct {
	EntityType string `form:"entity_type"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// UpdateEntityBody is a local edit request
type UpdateEntityBody struct {
	Status string         `json:"status"`
	Fields map[string]any `json:"fields"`
}

// ResyncResponse describes the outcome of a single-entity resync
type ResyncResponse struct {
	Key             string                      `json:"key"`
	Outcome         integration.ApplyOutcome    `json:"outcome"`
	ChangedFields   []string                    `json:"changed_fields,omitempty"`
	CanonicalStatus integration.CanonicalStatus `json:"canonical_status,omitempty"`
}

const defaultHistoryLimit = 50

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// SyncHandler serves the operational sync API
type SyncHandler struct {
	BaseHandler
	trigger  SyncJobTrigger
	history  SyncJobHistory
	resyncer EntityResyncer
	query    SyncQuery
	editor   LocalEditor
}

// NewSyncHandler creates a sync handler
func NewSyncHandler(
	trigger SyncJobTrigger,
	history SyncJobHistory,
	resyncer EntityResyncer,
	query SyncQuery,
	editor LocalEditor,
) *SyncHandler {
	return &SyncHandler{
		trigger:  trigger,
		history:  history,
		resyncer: resyncer,
		query:    query,
		editor:   editor,
	}
}

// Routes returns the sync route group
func (h *SyncHandler) Routes() *router.Group {
	g := router.NewGroup("/sync")
	g.GET("/runs", h.ListRuns).
		GET("/jobs", h.ListJobs).
		GET("/watermarks/:entityType", h.GetWatermark)
	g.POST("/:entityType/full", h.triggerSync(scheduler.JobModeFull)).
		POST("/:entityType/incremental", h.triggerSync(scheduler.JobModeIncremental)).
		POST("/:entityType/refresh", h.triggerSync(scheduler.JobModeRefresh)).
		POST("/:entityType/push-sweep", h.triggerSync(scheduler.JobModePushSweep))
	g.GET("/:entityType/entities", h.ListEntities).
		GET("/:entityType/entities/:externalId", h.GetEntity).
		PUT("/:entityType/entities/:externalId", h.UpdateEntity).
		POST("/:entityType/entities/:externalId/resync", h.Resync)
	return g
}

func (h *SyncHandler) entityType(c *gin.Context) (integration.EntityType, bool) {
	et, err := integration.ParseEntityType(c.Param("entityType"))
	if err != nil {
		h.NotFound(c, "Unknown entity type")
		return "", false
	}
	return et, true
}

// triggerSync returns the handler submitting a job of mode
func (h *SyncHandler) triggerSync(mode scheduler.JobMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		et, ok := h.entityType(c)
		if !ok {
			return
		}
		job, err := h.trigger.TriggerManualSync(et, mode)
		switch {
		case errors.Is(err, scheduler.ErrJobAlreadyQueued):
			h.ErrorWithCode(c, dto.ErrCodeConflict, "A "+string(mode)+" sync is already queued or running")
			return
		case errors.Is(err, scheduler.ErrSchedulerNotRunning), errors.Is(err, scheduler.ErrJobQueueFull):
			h.ErrorWithCode(c, dto.ErrCodeUnavailable, "Scheduler cannot accept jobs right now")
			return
		case err != nil:
			h.HandleError(c, err)
			return
		}
		h.Accepted(c, job)
	}
}

// Resync re-fetches one entity inline. It is the only way to re-enable a
// disabled entity.
func (h *SyncHandler) Resync(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	result, err := h.resyncer.ResyncEntity(c.Request.Context(), et, c.Param("externalId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ResyncResponse{
		Key:             result.Key.String(),
		Outcome:         result.Outcome,
		ChangedFields:   result.ChangedFields,
		CanonicalStatus: result.CanonicalStatus,
	})
}

// ListEntities lists mirrored entities filtered by sync metadata
func (h *SyncHandler) ListEntities(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var q ListEntitiesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	entities, total, err := h.query.ListEntities(c.Request.Context(), et, appintegration.ListEntitiesRequest{
		SyncStatus:        integration.SyncStatus(q.SyncStatus),
		MinErrorCount:     q.MinErrorCount,
		NeedsRevalidation: q.NeedsRevalidation,
		Page:              q.Page,
		PageSize:          q.PageSize,
		OrderBy:           q.OrderBy,
		OrderDir:          q.OrderDir,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	paging := integration.EntityFilter{Page: q.Page, PageSize: q.PageSize}
	paging.Normalize()
	h.SuccessWithMeta(c, entities, total, paging.Page, paging.PageSize)
}

// GetEntity returns one mirrored entity
func (h *SyncHandler) GetEntity(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	entity, err := h.query.GetEntity(c.Request.Context(), et, c.Param("externalId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entity)
}

// UpdateEntity applies a local edit. The change is pushed asynchronously.
func (h *SyncHandler) UpdateEntity(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var body UpdateEntityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, "Invalid JSON body")
		return
	}
	if body.Status == "" && len(body.Fields) == 0 {
		h.ErrorWithCode(c, dto.ErrCodeValidation, "Either status or fields is required")
		return
	}

	key, err := h.query.Key(et, c.Param("externalId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	entity, err := h.editor.UpdateLocal(c.Request.Context(), key, body.Fields, integration.CanonicalStatus(body.Status))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToEntityResponse(entity))
}

// GetWatermark returns the stored watermark of an entity type
func (h *SyncHandler) GetWatermark(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	w, err := h.query.GetWatermark(c.Request.Context(), et)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, w)
}

// ListRuns returns recent sync runs, newest first
func (h *SyncHandler) ListRuns(c *gin.Context) {
	q, et, ok := h.historyQuery(c)
	if !ok {
		return
	}
	runs, err := h.query.ListRuns(c.Request.Context(), et, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, runs)
}

// ListJobs returns recently finished scheduler jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	q, et, ok := h.historyQuery(c)
	if !ok {
		return
	}
	if et != "" {
		h.Success(c, h.history.GetJobHistoryByEntityType(et, q.Limit))
		return
	}
	h.Success(c, h.history.GetJobHistory(q.Limit))
}

func (h *SyncHandler) historyQuery(c *gin.Context) (HistoryQuery, integration.EntityType, bool) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return q, "", false
	}
	if q.Limit == 0 {
		q.Limit = defaultHistoryLimit
	}
	if q.EntityType == "" {
		return q, "", true
	}
	et, err := integration.ParseEntityType(q.EntityType)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidInput, "Unknown entity type: "+strconv.Quote(q.EntityType))
		return q, "", false
	}
	return q, et, true
}
