package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are limited independently")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("a"), "one token refills per half window")
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(3 * time.Second)
	rl.Allow("b")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

func TestRateLimitByKey(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	r := gin.New()
	r.Use(RateLimitByKey(rl, func(c *gin.Context) string { return c.GetHeader("X-Client") }))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Client", client)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("one").Code)
	limited := send("one")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, send("two").Code)
}
