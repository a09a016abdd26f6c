// Package handler implements the HTTP endpoints of the sync service.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Accepted sends a 202 response for work handed to a background worker
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// errorMapping pairs a sentinel with the API error code it surfaces as.
// Order matters: the first match wins.
var errorMapping = []struct {
	err     error
	code    string
	message string
}{
	{integration.ErrUnknownEntityType, dto.ErrCodeNotFound, "Unknown entity type"},
	{integration.ErrUnknownProvider, dto.ErrCodeNotFound, "Unknown provider"},
	{integration.ErrProviderNotConfigured, dto.ErrCodeNotFound, "Provider not configured"},
	{integration.ErrAdapterNotFound, dto.ErrCodeNotFound, "No remote adapter for entity type"},
	{integration.ErrEntityNotFound, dto.ErrCodeNotFound, "Entity not found"},
	{integration.ErrWatermarkNotFound, dto.ErrCodeNotFound, "No watermark recorded yet"},
	{integration.ErrSyncRunNotFound, dto.ErrCodeNotFound, "Sync run not found"},
	{integration.ErrRemoteNotFound, dto.ErrCodeNotFound, "Entity not found remotely"},
	{integration.ErrEntityGone, dto.ErrCodeGone, "Entity no longer exists remotely"},
	{integration.ErrInvalidStatus, dto.ErrCodeInvalidInput, "Status is not valid for entity type"},
	{integration.ErrValidationFailed, dto.ErrCodeInvalidState, "Remote record failed validation"},
	{integration.ErrWebhookMalformed, dto.ErrCodeMalformedPayload, "Malformed webhook payload"},
	{integration.ErrWebhookSignatureInvalid, dto.ErrCodeSignatureInvalid, "Invalid webhook signature"},
	{integration.ErrCircuitOpen, dto.ErrCodeCircuitOpen, "Entity disabled after repeated failures"},
	{integration.ErrSyncAlreadyRunning, dto.ErrCodeConflict, "Sync already running"},
	{integration.ErrRemoteRateLimited, dto.ErrCodeRateLimited, "Remote system rate limit exceeded"},
	{integration.ErrRemoteAuthFailed, dto.ErrCodeBadGateway, "Remote authentication failed"},
	{integration.ErrRemoteUnavailable, dto.ErrCodeBadGateway, "Remote system unavailable"},
	{integration.ErrRemoteRequestFailed, dto.ErrCodeBadGateway, "Remote system rejected the request"},
	{integration.ErrRemoteInvalidResponse, dto.ErrCodeBadGateway, "Invalid response from remote system"},
	{context.DeadlineExceeded, dto.ErrCodeTimeout, "Request timed out"},
}

// HandleError converts domain and sync errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			h.ErrorWithCode(c, m.code, m.message)
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}
