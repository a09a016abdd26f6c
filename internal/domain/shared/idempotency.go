package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys (webhook event ids, domain event ids)
// for a bounded window so that at-least-once delivery has at-most-once effect.
type IdempotencyStore interface {
	// MarkProcessed atomically marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether a key has already been marked
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases resources held by the store
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed key is remembered.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled.
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
