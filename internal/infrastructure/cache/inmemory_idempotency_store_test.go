package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryIdempotencyStore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
	store := NewInMemoryIdempotencyStore(WithClock(clock.Now))
	defer store.Close()
	ctx := context.Background()

	fresh, err := store.MarkProcessed(ctx, "order_api:evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.MarkProcessed(ctx, "order_api:evt-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh, "duplicate delivery")

	seen, err := store.IsProcessed(ctx, "order_api:evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.IsProcessed(ctx, "order_api:evt-2")
	require.NoError(t, err)
	assert.False(t, seen)

	clock.Advance(time.Hour)
	seen, _ = store.IsProcessed(ctx, "order_api:evt-1")
	assert.False(t, seen, "expired after ttl")
	fresh, _ = store.MarkProcessed(ctx, "order_api:evt-1", time.Hour)
	assert.True(t, fresh, "expired keys can be marked again")
}

func TestInMemoryIdempotencyStore_ConcurrentMarkHasOneWinner(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if fresh, _ := store.MarkProcessed(context.Background(), "same", time.Minute); fresh {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryIdempotencyStore_SweepsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewInMemoryIdempotencyStore(WithClock(clock.Now), WithCleanupInterval(5*time.Millisecond))
	defer store.Close()

	_, _ = store.MarkProcessed(context.Background(), "a", time.Second)
	_, _ = store.MarkProcessed(context.Background(), "b", time.Hour)
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
