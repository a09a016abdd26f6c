package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// DefaultLockPrefix namespaces sync run locks
const DefaultLockPrefix = "syncbridge:lock:"

// RedisRunLocker serializes sync runs across instances with redislock
type RedisRunLocker struct {
	locker *redislock.Client
	prefix string
}

// NewRedisRunLocker creates a locker on a shared client
func NewRedisRunLocker(client redis.UniversalClient, prefix string) *RedisRunLocker {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	return &RedisRunLocker{locker: redislock.New(client), prefix: prefix}
}

// Acquire obtains the lock without waiting. A held lock yields
// integration.ErrSyncAlreadyRunning. The lock expires after ttl if the
// holder dies.
func (l *RedisRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, integration.ErrSyncAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired while the run was still going
			return nil
		}
		return err
	}, nil
}

var _ appintegration.RunLocker = (*RedisRunLocker)(nil)
