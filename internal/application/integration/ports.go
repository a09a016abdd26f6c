package integration

import (
	"context"
	"sync"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// RunLocker serializes identical sync runs across workers and instances
type RunLocker interface {
	// Acquire obtains the named lock or returns integration.ErrSyncAlreadyRunning.
	// The returned release function must be called when the run ends.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// SyncMetricsRecorder receives sync telemetry
type SyncMetricsRecorder interface {
	RecordOutcome(ctx context.Context, entityType integration.EntityType, outcome integration.ApplyOutcome)
	RecordRun(ctx context.Context, run *integration.SyncRun)
	RecordWebhook(ctx context.Context, provider integration.Provider, result string)
	RecordPush(ctx context.Context, entityType integration.EntityType, result string)
	RecordDisabled(ctx context.Context, entityType integration.EntityType)
}

// PayloadArchive keeps raw webhook bodies whose processing failed
type PayloadArchive interface {
	Archive(ctx context.Context, provider integration.Provider, eventID string, body []byte) (string, error)
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(context.Context, integration.EntityType, integration.ApplyOutcome) {}
func (noopMetrics) RecordRun(context.Context, *integration.SyncRun)                                 {}
func (noopMetrics) RecordWebhook(context.Context, integration.Provider, string)                     {}
func (noopMetrics) RecordPush(context.Context, integration.EntityType, string)                      {}
func (noopMetrics) RecordDisabled(context.Context, integration.EntityType)                          {}

type noopArchive struct{}

func (noopArchive) Archive(context.Context, integration.Provider, string, []byte) (string, error) {
	return "", nil
}

// LocalRunLocker is an in-process RunLocker for single-instance deployments
type LocalRunLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalRunLocker creates an in-process run locker
func NewLocalRunLocker() *LocalRunLocker {
	return &LocalRunLocker{held: make(map[string]time.Time)}
}

// Acquire obtains the lock if it is free or its TTL has lapsed
func (l *LocalRunLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expires, ok := l.held[key]; ok && time.Now().Before(expires) {
		return nil, integration.ErrSyncAlreadyRunning
	}
	l.held[key] = time.Now().Add(ttl)

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}

var _ RunLocker = (*LocalRunLocker)(nil)
