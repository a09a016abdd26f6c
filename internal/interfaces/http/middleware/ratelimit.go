package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window with a burst of requests.
// Idle keys are evicted after two windows.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	return &RateLimiter{
		clients: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
		ttl:     2 * window,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, e := range rl.clients {
		if now.Sub(e.lastSeen) > rl.ttl {
			delete(rl.clients, k)
		}
	}

	e, ok := rl.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimitByKey rate limits requests grouped by keyFunc
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(keyFunc(c)) {
			c.Header("Retry-After", strconv.Itoa(max(1, int(1/float64(limiter.limit)))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				GetRequestID(c),
			))
			return
		}
		c.Next()
	}
}

// RateLimit rate limits requests per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.ClientIP() })
}
