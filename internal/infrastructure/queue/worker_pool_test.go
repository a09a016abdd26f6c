package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/syncbridge/backend/internal/domain/shared"
)

func newTask(t *testing.T, kind string) shared.Task {
	t.Helper()
	task, err := shared.NewTask(kind, map[string]string{"event": "evt-1"})
	require.NoError(t, err)
	return task
}

func TestConfig_Backoff(t *testing.T) {
	cfg := Config{RetryDelay: time.Second}.withDefaults()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{20, MaxRetryDelay},
		{80, MaxRetryDelay},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestWorkerPool_SubmitBeforeStart(t *testing.T) {
	pool := NewWorkerPool(Config{}, zap.NewNop())

	err := pool.Submit(context.Background(), newTask(t, "webhook_event"))
	assert.ErrorIs(t, err, shared.ErrQueueNotRunning)

	err = pool.Submit(context.Background(), shared.Task{ID: "x"})
	assert.ErrorIs(t, err, shared.ErrTaskKindRequired)
}

func TestWorkerPool_DispatchesByKind(t *testing.T) {
	pool := NewWorkerPool(Config{Workers: 2}, zap.NewNop())

	got := make(chan shared.Task, 1)
	pool.Register("webhook_event", func(_ context.Context, task shared.Task) error {
		got <- task
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	task := newTask(t, "webhook_event")
	require.NoError(t, pool.Submit(context.Background(), task))

	select {
	case received := <-got:
		assert.Equal(t, task.ID, received.ID)
		assert.Equal(t, 1, received.Attempt)
		var payload map[string]string
		require.NoError(t, received.Decode(&payload))
		assert.Equal(t, "evt-1", payload["event"])
	case <-time.After(2 * time.Second):
		t.Fatal("task was not dispatched")
	}
}

func TestWorkerPool_RetriesUntilMaxAttempts(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pool := NewWorkerPool(Config{Workers: 1, MaxAttempts: 3, RetryDelay: time.Millisecond}, zap.New(core))

	var calls atomic.Int32
	pool.Register("webhook_event", func(context.Context, shared.Task) error {
		calls.Add(1)
		return errors.New("downstream unavailable")
	})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	require.NoError(t, pool.Submit(context.Background(), newTask(t, "webhook_event")))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Task failed permanently").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, logs.FilterMessage("Task failed, retrying").Len())
}

func TestWorkerPool_UnknownKindIsNotRetried(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pool := NewWorkerPool(Config{Workers: 1, RetryDelay: time.Millisecond}, zap.New(core))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	require.NoError(t, pool.Submit(context.Background(), newTask(t, "unknown")))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Task failed permanently").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, logs.FilterMessage("Task failed, retrying").Len())
}

func TestWorkerPool_PanicIsRecovered(t *testing.T) {
	pool := NewWorkerPool(Config{Workers: 1, MaxAttempts: 1}, zap.NewNop())

	var calls atomic.Int32
	pool.Register("webhook_event", func(context.Context, shared.Task) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	require.NoError(t, pool.Submit(context.Background(), newTask(t, "webhook_event")))
	require.NoError(t, pool.Submit(context.Background(), newTask(t, "webhook_event")))

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerPool_QueueFull(t *testing.T) {
	pool := NewWorkerPool(Config{Workers: 1, BufferSize: 1}, zap.NewNop())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool.Register("slow", func(context.Context, shared.Task) error {
		started <- struct{}{}
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())
	defer close(release)

	require.NoError(t, pool.Submit(context.Background(), newTask(t, "slow")))
	<-started
	require.NoError(t, pool.Submit(context.Background(), newTask(t, "slow")))
	assert.Equal(t, 1, pool.Pending())

	err := pool.Submit(context.Background(), newTask(t, "slow"))
	assert.ErrorIs(t, err, shared.ErrQueueFull)
}

func TestWorkerPool_StopWaitsForInFlight(t *testing.T) {
	pool := NewWorkerPool(Config{Workers: 1}, zap.NewNop())

	started := make(chan struct{})
	var finished atomic.Bool
	pool.Register("slow", func(ctx context.Context, _ shared.Task) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(ctx.Err() == nil)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(context.Background(), newTask(t, "slow")))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))
	assert.True(t, finished.Load())

	assert.ErrorIs(t, pool.Submit(context.Background(), newTask(t, "slow")), shared.ErrQueueNotRunning)
	assert.NoError(t, pool.Stop(context.Background()))
}
