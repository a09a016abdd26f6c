package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// New builds the queue backend selected by cfg.Backend. The redis backend
// requires a client.
func New(cfg config.QueueConfig, client redis.UniversalClient, logger *zap.Logger) (shared.TaskQueue, error) {
	qcfg := Config{Workers: cfg.Workers, BufferSize: cfg.BufferSize}

	switch cfg.Backend {
	case "", "memory":
		return NewWorkerPool(qcfg, logger), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("queue: redis backend requires a redis client")
		}
		return NewRedisTaskQueue(client, cfg.RedisKey, qcfg, logger), nil
	default:
		return nil, fmt.Errorf("queue: unknown backend %q", cfg.Backend)
	}
}
