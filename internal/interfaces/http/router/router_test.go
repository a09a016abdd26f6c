package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRouter_Setup(t *testing.T) {
	engine := gin.New()
	guard := func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}

	api := NewGroup("/sync").GET("/runs", func(c *gin.Context) {
		c.String(http.StatusOK, "runs")
	})
	hooks := NewGroup("/webhooks").POST("/:provider", func(c *gin.Context) {
		c.String(http.StatusOK, c.Param("provider"))
	})

	routes := NewRouter(engine, WithAPIMiddleware(guard)).
		Register(api).
		RegisterRoot(hooks).
		Setup()
	require.Len(t, routes, 2)

	assert.Equal(t, http.StatusUnauthorized, serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil)
	req.Header.Set("Authorization", "Bearer x")
	assert.Equal(t, "runs", serve(engine, req).Body.String())

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/webhooks/order_api", nil))
	assert.Equal(t, http.StatusOK, w.Code, "root routes skip API middleware")
	assert.Equal(t, "order_api", w.Body.String())
}

func TestGroup(t *testing.T) {
	t.Run("registers each method", func(t *testing.T) {
		engine := gin.New()
		NewGroup("/sync").
			GET("/order/entities", func(c *gin.Context) { c.Status(http.StatusOK) }).
			POST("/order/full", func(c *gin.Context) { c.Status(http.StatusAccepted) }).
			PUT("/order/entities/:id", func(c *gin.Context) { c.Status(http.StatusOK) }).
			RegisterRoutes(engine.Group("/api/v1"))

		tests := []struct {
			method string
			path   string
			want   int
		}{
			{http.MethodGet, "/api/v1/sync/order/entities", http.StatusOK},
			{http.MethodPost, "/api/v1/sync/order/full", http.StatusAccepted},
			{http.MethodPut, "/api/v1/sync/order/entities/9001", http.StatusOK},
			{http.MethodGet, "/api/v1/sync/missing", http.StatusNotFound},
		}
		for _, tt := range tests {
			got := serve(engine, httptest.NewRequest(tt.method, tt.path, nil)).Code
			assert.Equal(t, tt.want, got, tt.method+" "+tt.path)
		}
	})

	t.Run("middleware reaches subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewGroup("/sync").Use(func(c *gin.Context) {
			c.Header("X-Group", "sync")
			c.Next()
		})
		g.Group("/jobs").GET("", func(c *gin.Context) { c.String(http.StatusOK, "jobs") })
		g.RegisterRoutes(&engine.RouterGroup)

		w := serve(engine, httptest.NewRequest(http.MethodGet, "/sync/jobs", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "jobs", w.Body.String())
		assert.Equal(t, "sync", w.Header().Get("X-Group"))
	})
}
