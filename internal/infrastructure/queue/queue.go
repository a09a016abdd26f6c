// Package queue provides shared.TaskQueue backends: an in-process worker
// pool and a Redis list broker.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// MaxRetryDelay caps the exponential retry backoff
const MaxRetryDelay = 30 * time.Minute

// Config holds settings shared by the queue backends
type Config struct {
	Workers     int
	BufferSize  int
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultConfig returns defaults for a single instance
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		BufferSize:  1000,
		MaxAttempts: 3,
		RetryDelay:  time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	return c
}

// backoff returns the delay before the given retry attempt (1-based)
func (c Config) backoff(attempt int) time.Duration {
	delay := c.RetryDelay << max(attempt-1, 0)
	if delay <= 0 || delay > MaxRetryDelay {
		return MaxRetryDelay
	}
	return delay
}

// handlers routes tasks to the handler registered for their kind
type handlers struct {
	mu sync.RWMutex
	m  map[string]shared.TaskHandler
}

func (h *handlers) register(kind string, handler shared.TaskHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[string]shared.TaskHandler)
	}
	h.m[kind] = handler
}

func (h *handlers) get(kind string) (shared.TaskHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.m[kind]
	return handler, ok
}

// dispatch runs the handler for task, converting a panic into an error
func (h *handlers) dispatch(ctx context.Context, task shared.Task) (err error) {
	handler, ok := h.get(task.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrNoTaskHandler, task.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return handler(ctx, task)
}

func taskFields(task shared.Task) []zap.Field {
	return []zap.Field{
		zap.String("task_id", task.ID),
		zap.String("task_kind", task.Kind),
		zap.Int("attempt", task.Attempt),
	}
}
