package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"entity not found", fmt.Errorf("lookup: %w", integration.ErrEntityNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"unknown entity type", integration.ErrUnknownEntityType, http.StatusNotFound, dto.ErrCodeNotFound},
		{"gone", integration.ErrEntityGone, http.StatusGone, dto.ErrCodeGone},
		{"invalid status", integration.ErrInvalidStatus, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"remote unavailable", integration.ErrRemoteUnavailable, http.StatusBadGateway, dto.ErrCodeBadGateway},
		{"classified remote 404", integration.NewSyncError(integration.ErrorClassPermanent, "resync", integration.ErrRemoteNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"circuit open", integration.ErrCircuitOpen, http.StatusUnprocessableEntity, dto.ErrCodeCircuitOpen},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, dto.ErrCodeTimeout},
		{"domain error", shared.NewDomainError("CONFLICT", "already exists"), http.StatusConflict, dto.ErrCodeConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	h := &BaseHandler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(middleware.RequestIDKey, "req-42")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-42", resp.Error.RequestID)
		})
	}
}

func TestBaseHandler_HandleErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	(&BaseHandler{}).HandleError(c, nil)

	assert.Zero(t, w.Body.Len())
}

func TestBaseHandler_SuccessWithMeta(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	(&BaseHandler{}).SuccessWithMeta(c, []string{"a", "b"}, 41, 2, 20)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(41), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}
