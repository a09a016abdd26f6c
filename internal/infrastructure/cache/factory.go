package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// Coordination builds the dedup store and run locker. With a Redis client
// both are shared across instances; without one they are process local.
type Coordination struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewCoordination creates the factory. client may be nil.
func NewCoordination(client redis.UniversalClient, logger *zap.Logger) *Coordination {
	return &Coordination{client: client, logger: logger}
}

// Distributed reports whether state is shared through Redis
func (c *Coordination) Distributed() bool {
	return c.client != nil
}

// IdempotencyStore returns the webhook dedup store
func (c *Coordination) IdempotencyStore() shared.IdempotencyStore {
	if c.client != nil {
		c.logger.Info("Using Redis idempotency store")
		return NewRedisIdempotencyStore(c.client, DefaultDedupPrefix)
	}
	c.logger.Warn("Redis disabled, using in-memory idempotency store; duplicate deliveries across instances will not be detected")
	return NewInMemoryIdempotencyStore()
}

// RunLocker returns the sync run lock
func (c *Coordination) RunLocker() appintegration.RunLocker {
	if c.client != nil {
		return NewRedisRunLocker(c.client, DefaultLockPrefix)
	}
	return appintegration.NewLocalRunLocker()
}
