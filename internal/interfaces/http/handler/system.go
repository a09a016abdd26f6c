package handler

import (
	"context"
	"maps"
	"net/http"
	"runtime"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// healthCheckTimeout bounds each dependency probe
const healthCheckTimeout = 2 * time.Second

// SystemHandler handles health and system information endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	checks    map[string]HealthCheck
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheck),
	}
}

// AddCheck registers a dependency probe reported by Health
func (h *SystemHandler) AddCheck(name string, check HealthCheck) *SystemHandler {
	h.checks[name] = check
	return h
}

// Routes returns the system route group
func (h *SystemHandler) Routes() *router.Group {
	return router.NewGroup("/system").
		GET("/info", h.GetSystemInfo).
		GET("/ping", h.Ping)
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns version and uptime
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping answers without touching dependencies
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthResponse reports the state of each dependency
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health runs every registered check. Any failure makes the service unhealthy.
func (h *SystemHandler) Health(c *gin.Context) {
	names := slices.Sorted(maps.Keys(h.checks))
	resp := HealthResponse{Status: "healthy", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			resp.Status = "unhealthy"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	if resp.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp, Error: &dto.ErrorInfo{
			Code:    dto.ErrCodeUnavailable,
			Message: "One or more dependencies are unavailable",
		}})
		return
	}
	h.Success(c, resp)
}
