package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_Info(t *testing.T) {
	h := NewSystemHandler("syncbridge", "1.2.3")
	r := gin.New()
	h.Routes().RegisterRoutes(&r.RouterGroup)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/system/info", nil))

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "syncbridge", data["name"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.NotEmpty(t, data["go_version"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/system/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestSystemHandler_Health(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name:       "all healthy",
			checks:     map[string]HealthCheck{"database": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			checks:     map[string]HealthCheck{"database": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "redis": "connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("syncbridge", "1.0.0")
			for name, check := range tt.checks {
				h.AddCheck(name, check)
			}
			r := gin.New()
			r.GET("/health", h.Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			data := decodeResponse(t, w).Data.(map[string]any)
			got := map[string]string{}
			for k, v := range data["checks"].(map[string]any) {
				got[k] = v.(string)
			}
			assert.Equal(t, tt.wantChecks, got)
		})
	}
}
