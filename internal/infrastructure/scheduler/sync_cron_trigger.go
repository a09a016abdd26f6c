package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// EntityTypeProvider lists the entity types that have a registered adapter
type EntityTypeProvider interface {
	EntityTypes() []integration.EntityType
}

// SyncCronTriggerConfig holds configuration for the sync cron trigger
type SyncCronTriggerConfig struct {
	// CheckInterval is how often to check whether a job is due
	CheckInterval time.Duration
	// Intervals is the period of each job mode; zero disables the mode
	Intervals map[JobMode]time.Duration
}

// DefaultSyncCronTriggerConfig returns default cron trigger configuration
func DefaultSyncCronTriggerConfig() SyncCronTriggerConfig {
	return SyncCronTriggerConfig{
		CheckInterval: time.Minute,
		Intervals: map[JobMode]time.Duration{
			JobModeIncremental: 10 * time.Minute,
			JobModeFull:        6 * time.Hour,
			JobModeRefresh:     30 * time.Minute,
			JobModePushSweep:   5 * time.Minute,
		},
	}
}

// SyncCronTrigger submits periodic sync jobs for every entity type. Full
// syncs first fire one interval after Start; the other modes fire at once.
type SyncCronTrigger struct {
	config    SyncCronTriggerConfig
	scheduler *SyncScheduler
	types     EntityTypeProvider
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastScheduledMu sync.RWMutex
	lastScheduled   map[string]time.Time
}

// NewSyncCronTrigger creates a new sync cron trigger
func NewSyncCronTrigger(
	config SyncCronTriggerConfig,
	scheduler *SyncScheduler,
	types EntityTypeProvider,
	logger *zap.Logger,
) *SyncCronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	return &SyncCronTrigger{
		config:        config,
		scheduler:     scheduler,
		types:         types,
		logger:        logger,
		now:           time.Now,
		lastScheduled: make(map[string]time.Time),
	}
}

// Start starts the cron trigger
func (c *SyncCronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	now := c.now()
	for _, entityType := range c.types.EntityTypes() {
		c.markScheduled(entityType, JobModeFull, now)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sync cron trigger started",
		zap.Duration("check_interval", c.config.CheckInterval),
		zap.Duration("incremental_interval", c.config.Intervals[JobModeIncremental]),
		zap.Duration("full_interval", c.config.Intervals[JobModeFull]),
		zap.Duration("refresh_interval", c.config.Intervals[JobModeRefresh]),
		zap.Duration("push_sweep_interval", c.config.Intervals[JobModePushSweep]),
	)
	return nil
}

// Stop stops the cron trigger
func (c *SyncCronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncCronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.checkAndSchedule()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndSchedule()
		}
	}
}

// checkAndSchedule submits every job whose interval has elapsed and returns
// the number submitted
func (c *SyncCronTrigger) checkAndSchedule() int {
	now := c.now()
	submitted := 0

	for _, entityType := range c.types.EntityTypes() {
		for _, mode := range AllJobModes() {
			interval := c.config.Intervals[mode]
			if interval <= 0 || !c.isDue(entityType, mode, interval, now) {
				continue
			}

			_, err := c.scheduler.Schedule(entityType, mode, JobTriggerCron)
			switch {
			case err == nil:
				submitted++
			case errors.Is(err, ErrJobAlreadyQueued):
				c.logger.Debug("Sync job still in flight, skipping tick",
					zap.String("entity_type", string(entityType)),
					zap.String("mode", string(mode)),
				)
			default:
				c.logger.Error("Failed to schedule sync job",
					zap.String("entity_type", string(entityType)),
					zap.String("mode", string(mode)),
					zap.Error(err),
				)
				continue
			}
			c.markScheduled(entityType, mode, now)
		}
	}
	return submitted
}

func (c *SyncCronTrigger) isDue(entityType integration.EntityType, mode JobMode, interval time.Duration, now time.Time) bool {
	c.lastScheduledMu.RLock()
	last, ok := c.lastScheduled[makeKey(entityType, mode)]
	c.lastScheduledMu.RUnlock()
	return !ok || now.Sub(last) >= interval
}

func (c *SyncCronTrigger) markScheduled(entityType integration.EntityType, mode JobMode, t time.Time) {
	c.lastScheduledMu.Lock()
	c.lastScheduled[makeKey(entityType, mode)] = t
	c.lastScheduledMu.Unlock()
}

// TriggerManualSync submits a job outside the schedule and resets the mode's timer
func (c *SyncCronTrigger) TriggerManualSync(entityType integration.EntityType, mode JobMode) (*SyncJob, error) {
	job, err := c.scheduler.Schedule(entityType, mode, JobTriggerManual)
	if err != nil {
		return nil, err
	}
	c.markScheduled(entityType, mode, c.now())
	return job, nil
}

func makeKey(entityType integration.EntityType, mode JobMode) string {
	return string(entityType) + ":" + string(mode)
}
