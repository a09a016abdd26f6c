package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int
	// QueueSize is the capacity of the pending job buffer
	QueueSize int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retry attempts for failed jobs
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// MaxHistory is the number of finished jobs kept for monitoring
	MaxHistory int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: 2,
		QueueSize:         100,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        time.Minute,
		MaxHistory:        100,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	if c.MaxHistory <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// SyncScheduler runs sync jobs on a bounded worker pool. At most one job per
// (entity type, mode) is pending or running at a time.
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor SyncJobExecutor
	logger   *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inflight  map[string]struct{}

	// Job history for monitoring (in-memory, limited size)
	historyMu sync.RWMutex
	history   []SyncJob
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor SyncJobExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &SyncScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *SyncJob, config.QueueSize),
		inflight: make(map[string]struct{}),
		history:  make([]SyncJob, 0, config.MaxHistory),
	}, nil
}

// Start starts the scheduler
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, s.cancel = context.WithCancel(ctx)

	for i := range s.config.MaxConcurrentJobs {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Schedule creates and submits a job for the entity type and mode
func (s *SyncScheduler) Schedule(entityType integration.EntityType, mode JobMode, trigger JobTrigger) (*SyncJob, error) {
	if _, err := ParseJobMode(string(mode)); err != nil {
		return nil, err
	}
	job := NewSyncJob(entityType, mode, trigger, s.config.RetryAttempts)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// SubmitJob submits a job for execution
func (s *SyncScheduler) SubmitJob(job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, ok := s.inflight[job.key()]; ok {
		return ErrJobAlreadyQueued
	}

	select {
	case s.jobs <- job:
		s.inflight[job.key()] = struct{}{}
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("entity_type", string(job.EntityType)),
			zap.String("mode", string(job.Mode)),
			zap.String("trigger", string(job.Trigger)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *SyncScheduler) release(job *SyncJob) {
	s.mu.Lock()
	delete(s.inflight, job.key())
	s.mu.Unlock()
}

// worker processes jobs from the queue
func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Sync worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sync worker stopping", zap.Int("worker_id", workerID))
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("entity_type", string(job.EntityType)),
		zap.String("mode", string(job.Mode)),
	)

	job.Start()
	log.Info("Processing sync job", zap.Int("retry_count", job.RetryCount))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	err := s.executor.Execute(jobCtx, job)
	cancel()

	switch {
	case err == nil:
		job.Complete()
		log.Info("Sync job completed",
			zap.String("status", string(job.Status)),
			zap.Int("created", job.Summary.Created),
			zap.Int("updated", job.Summary.Updated),
			zap.Int("errored", job.Summary.Errored),
			zap.Int("pushed", job.Pushed),
		)

	case errors.Is(err, integration.ErrSyncAlreadyRunning):
		job.Skip(err.Error())
		log.Info("Sync job skipped, run already in progress")

	default:
		job.Fail(err.Error())
		log.Error("Sync job failed", zap.Error(err))

		if job.ShouldRetry() && ctx.Err() == nil {
			s.addToHistory(job)
			delay := job.ScheduleRetry(s.config.RetryDelay)
			log.Info("Sync job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Time("next_retry_at", *job.NextRetryAt),
			)
			s.retryAfter(ctx, job, delay)
			return
		}
	}

	s.release(job)
	s.addToHistory(job)
}

// retryAfter re-queues the job once delay elapses. The job stays in flight
// meanwhile so the cron trigger does not stack a duplicate.
func (s *SyncScheduler) retryAfter(ctx context.Context, job *SyncJob, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			s.release(job)
			return
		case <-timer.C:
		}

		select {
		case s.jobs <- job:
		default:
			s.logger.Warn("Failed to re-queue sync job for retry",
				zap.String("job_id", job.ID.String()),
			)
			s.release(job)
		}
	}()
}

// addToHistory records a snapshot of the job, newest first
func (s *SyncScheduler) addToHistory(job *SyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]SyncJob{*job}, s.history...)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[:s.config.MaxHistory]
	}
}

// GetJobHistory returns recent job history, newest first
func (s *SyncScheduler) GetJobHistory(limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	result := make([]SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByEntityType returns job history for one entity type
func (s *SyncScheduler) GetJobHistoryByEntityType(entityType integration.EntityType, limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	capacity := len(s.history)
	if limit > 0 && limit < capacity {
		capacity = limit
	}
	result := make([]SyncJob, 0, capacity)
	for _, job := range s.history {
		if job.EntityType == entityType {
			result = append(result, job)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result
}
