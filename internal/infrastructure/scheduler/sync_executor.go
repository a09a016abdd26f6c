package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncJobExecutor executes sync jobs
type SyncJobExecutor interface {
	Execute(ctx context.Context, job *SyncJob) error
}

// SyncRunner runs coordinator sync passes
type SyncRunner interface {
	FullSync(ctx context.Context, entityType integration.EntityType) (*integration.SyncRun, error)
	IncrementalSync(ctx context.Context, entityType integration.EntityType) (*integration.SyncRun, error)
	RefreshTracked(ctx context.Context, entityType integration.EntityType) (*integration.SyncRun, error)
}

// PendingPushSweeper republishes pushes for locally modified entities
type PendingPushSweeper interface {
	SweepPending(ctx context.Context, entityType integration.EntityType) (int, error)
}

// SyncExecutor dispatches jobs to the coordinator or the push sweeper
type SyncExecutor struct {
	runner  SyncRunner
	sweeper PendingPushSweeper
	logger  *zap.Logger
}

// NewSyncExecutor creates an executor. sweeper may be nil when push is disabled.
func NewSyncExecutor(runner SyncRunner, sweeper PendingPushSweeper, logger *zap.Logger) *SyncExecutor {
	return &SyncExecutor{
		runner:  runner,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Execute runs the job's mode. The resulting run, if any, is recorded on the
// job even when the run failed.
func (e *SyncExecutor) Execute(ctx context.Context, job *SyncJob) error {
	var (
		run *integration.SyncRun
		err error
	)

	switch job.Mode {
	case JobModeFull:
		run, err = e.runner.FullSync(ctx, job.EntityType)
	case JobModeIncremental:
		run, err = e.runner.IncrementalSync(ctx, job.EntityType)
	case JobModeRefresh:
		run, err = e.runner.RefreshTracked(ctx, job.EntityType)
	case JobModePushSweep:
		return e.sweep(ctx, job)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidJobMode, job.Mode)
	}

	job.RecordRun(run)
	if err != nil {
		return err
	}

	e.logger.Debug("Sync run finished",
		zap.String("job_id", job.ID.String()),
		zap.String("entity_type", string(job.EntityType)),
		zap.String("mode", string(job.Mode)),
		zap.String("run_status", string(run.Status)),
	)
	return nil
}

func (e *SyncExecutor) sweep(ctx context.Context, job *SyncJob) error {
	if e.sweeper == nil {
		return nil
	}
	n, err := e.sweeper.SweepPending(ctx, job.EntityType)
	job.Pushed = n
	if err != nil {
		return fmt.Errorf("push sweep: %w", err)
	}
	if n > 0 {
		e.logger.Info("Republished pending pushes",
			zap.String("entity_type", string(job.EntityType)),
			zap.Int("count", n),
		)
	}
	return nil
}

var _ SyncJobExecutor = (*SyncExecutor)(nil)
