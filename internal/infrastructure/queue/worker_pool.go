package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// WorkerPool is an in-process shared.TaskQueue backed by a buffered channel.
// Queued tasks are lost if the process exits.
type WorkerPool struct {
	config   Config
	logger   *zap.Logger
	handlers handlers

	tasks     chan shared.Task
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
}

// NewWorkerPool creates a worker pool
func NewWorkerPool(cfg Config, logger *zap.Logger) *WorkerPool {
	cfg = cfg.withDefaults()
	return &WorkerPool{
		config: cfg,
		logger: logger.Named("queue"),
		tasks:  make(chan shared.Task, cfg.BufferSize),
	}
}

// Register binds a handler to a task kind
func (p *WorkerPool) Register(kind string, handler shared.TaskHandler) {
	p.handlers.register(kind, handler)
}

// Start launches the workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := range p.config.Workers {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("buffer", p.config.BufferSize),
	)
	return nil
}

// Stop stops accepting tasks and waits for in-flight tasks to finish.
// Buffered tasks and pending retries are dropped.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n := len(p.tasks); n > 0 {
			p.logger.Warn("Dropped buffered tasks on shutdown", zap.Int("dropped", n))
		}
		p.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out", zap.Int("pending", len(p.tasks)))
		return ctx.Err()
	}
}

// Submit enqueues a task without blocking. Returns shared.ErrQueueFull when
// the buffer is full.
func (p *WorkerPool) Submit(_ context.Context, task shared.Task) error {
	if task.Kind == "" {
		return shared.ErrTaskKindRequired
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.isRunning {
		return shared.ErrQueueNotRunning
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return shared.ErrQueueFull
	}
}

// Pending returns the number of buffered tasks
func (p *WorkerPool) Pending() int {
	return len(p.tasks)
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.run(ctx, task, id)
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, task shared.Task, workerID int) {
	task.Attempt++
	// In-flight work finishes even when Stop cancels ctx
	err := p.handlers.dispatch(context.WithoutCancel(ctx), task)
	if err == nil {
		return
	}

	log := p.logger.With(taskFields(task)...).With(zap.Int("worker_id", workerID))
	if errors.Is(err, shared.ErrNoTaskHandler) || task.Attempt >= p.config.MaxAttempts {
		log.Error("Task failed permanently", zap.Error(err))
		return
	}

	delay := p.config.backoff(task.Attempt)
	log.Warn("Task failed, retrying", zap.Duration("delay", delay), zap.Error(err))
	p.retryAfter(ctx, task, delay)
}

func (p *WorkerPool) retryAfter(ctx context.Context, task shared.Task, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			p.logger.Warn("Dropping retry on shutdown", taskFields(task)...)
			return
		case <-timer.C:
		}

		select {
		case p.tasks <- task:
		default:
			p.logger.Error("Queue full, dropping retry", taskFields(task)...)
		}
	}()
}

var _ shared.TaskQueue = (*WorkerPool)(nil)
