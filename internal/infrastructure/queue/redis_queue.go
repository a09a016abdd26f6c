package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/shared"
)

const (
	defaultPollTimeout     = time.Second
	defaultPromoteInterval = time.Second
)

// RedisTaskQueue is a shared.TaskQueue backed by a Redis list. Producers
// LPUSH, workers BRPOP. Retries wait in a sorted set scored by their due time
// until a promoter moves them back onto the list, so several instances can
// share one queue.
type RedisTaskQueue struct {
	client   redis.UniversalClient
	key      string
	config   Config
	logger   *zap.Logger
	handlers handlers

	pollTimeout     time.Duration
	promoteInterval time.Duration

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
}

// RedisQueueOption configures a RedisTaskQueue
type RedisQueueOption func(*RedisTaskQueue)

// WithPollTimeout sets the BRPOP timeout of idle workers
func WithPollTimeout(d time.Duration) RedisQueueOption {
	return func(q *RedisTaskQueue) {
		if d > 0 {
			q.pollTimeout = d
		}
	}
}

// WithPromoteInterval sets how often due retries are moved back onto the list
func WithPromoteInterval(d time.Duration) RedisQueueOption {
	return func(q *RedisTaskQueue) {
		if d > 0 {
			q.promoteInterval = d
		}
	}
}

// NewRedisTaskQueue creates a queue on the given list key
func NewRedisTaskQueue(client redis.UniversalClient, key string, cfg Config, logger *zap.Logger, opts ...RedisQueueOption) *RedisTaskQueue {
	q := &RedisTaskQueue{
		client:          client,
		key:             key,
		config:          cfg.withDefaults(),
		logger:          logger.Named("queue").With(zap.String("queue_key", key)),
		pollTimeout:     defaultPollTimeout,
		promoteInterval: defaultPromoteInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisTaskQueue) delayedKey() string {
	return q.key + ":delayed"
}

// Register binds a handler to a task kind
func (q *RedisTaskQueue) Register(kind string, handler shared.TaskHandler) {
	q.handlers.register(kind, handler)
}

// Start launches the workers and the retry promoter
func (q *RedisTaskQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return nil
	}
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: redis unavailable: %w", err)
	}
	q.isRunning = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := range q.config.Workers {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.wg.Add(1)
	go q.promoteLoop(ctx)

	q.logger.Info("Redis task queue started", zap.Int("workers", q.config.Workers))
	return nil
}

// Stop cancels the workers and waits for in-flight tasks. Tasks still in
// Redis stay there for the next consumer.
func (q *RedisTaskQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Redis task queue stopped")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Redis task queue stop timed out")
		return ctx.Err()
	}
}

// Submit pushes the task onto the list. Returns shared.ErrQueueFull once the
// list holds BufferSize tasks.
func (q *RedisTaskQueue) Submit(ctx context.Context, task shared.Task) error {
	if task.Kind == "" {
		return shared.ErrTaskKindRequired
	}

	q.mu.RLock()
	running := q.isRunning
	q.mu.RUnlock()
	if !running {
		return shared.ErrQueueNotRunning
	}

	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return fmt.Errorf("queue: length check failed: %w", err)
	}
	if n >= int64(q.config.BufferSize) {
		return shared.ErrQueueFull
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("queue: push failed: %w", err)
	}
	return nil
}

// Pending returns the number of tasks waiting on the list
func (q *RedisTaskQueue) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisTaskQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.logger.Warn("BRPOP failed", zap.Int("worker_id", id), zap.Error(err))
			sleep(ctx, q.pollTimeout)
			continue
		}

		var task shared.Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			q.logger.Error("Dropping undecodable task", zap.Int("worker_id", id), zap.Error(err))
			continue
		}
		q.run(ctx, task, id)
	}
}

func (q *RedisTaskQueue) run(ctx context.Context, task shared.Task, workerID int) {
	task.Attempt++
	err := q.handlers.dispatch(context.WithoutCancel(ctx), task)
	if err == nil {
		return
	}

	log := q.logger.With(taskFields(task)...).With(zap.Int("worker_id", workerID))
	if errors.Is(err, shared.ErrNoTaskHandler) || task.Attempt >= q.config.MaxAttempts {
		log.Error("Task failed permanently", zap.Error(err))
		return
	}

	delay := q.config.backoff(task.Attempt)
	if rerr := q.scheduleRetry(context.WithoutCancel(ctx), task, time.Now().Add(delay)); rerr != nil {
		log.Error("Failed to schedule retry", zap.Error(rerr), zap.NamedError("task_error", err))
		return
	}
	log.Warn("Task failed, retrying", zap.Duration("delay", delay), zap.Error(err))
}

func (q *RedisTaskQueue) scheduleRetry(ctx context.Context, task shared.Task, due time.Time) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: raw,
	}).Err()
}

func (q *RedisTaskQueue) promoteLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.promoteDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
				q.logger.Warn("Retry promotion failed", zap.Error(err))
			}
		}
	}
}

// promoteDue moves retries due at or before now back onto the list.
// ZREM decides ownership when several instances promote concurrently.
func (q *RedisTaskQueue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key, member).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

var _ shared.TaskQueue = (*RedisTaskQueue)(nil)
