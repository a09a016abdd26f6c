package cache

import (
	"context"
	"sync"
	"time"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// DefaultCleanupInterval is how often expired keys are swept
const DefaultCleanupInterval = 5 * time.Minute

// InMemoryIdempotencyStore implements shared.IdempotencyStore in process.
// Keys are not shared between instances.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	now       func() time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// InMemoryOption configures an InMemoryIdempotencyStore
type InMemoryOption func(*inMemoryOptions)

type inMemoryOptions struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanupInterval sets how often expired keys are swept
func WithCleanupInterval(d time.Duration) InMemoryOption {
	return func(o *inMemoryOptions) {
		o.cleanupInterval = d
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) InMemoryOption {
	return func(o *inMemoryOptions) {
		o.now = now
	}
}

// NewInMemoryIdempotencyStore creates the store and starts its sweeper
func NewInMemoryIdempotencyStore(opts ...InMemoryOption) *InMemoryIdempotencyStore {
	o := inMemoryOptions{cleanupInterval: DefaultCleanupInterval, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &InMemoryIdempotencyStore{
		expiry: make(map[string]time.Time),
		now:    o.now,
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweep(o.cleanupInterval)
	return s
}

// MarkProcessed records key unless an unexpired record exists.
// Returns true if the key was newly marked.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.expiry[key]; ok && now.Before(expires) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether key is marked and unexpired
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.expiry[key]
	return ok && s.now().Before(expires), nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Len returns the number of stored keys, expired ones included
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *InMemoryIdempotencyStore) sweep(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *InMemoryIdempotencyStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expires := range s.expiry {
		if !now.Before(expires) {
			delete(s.expiry, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
