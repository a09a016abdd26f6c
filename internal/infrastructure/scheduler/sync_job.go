package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// JobMode selects what a sync job runs
type JobMode string

const (
	JobModeFull        JobMode = "full"
	JobModeIncremental JobMode = "incremental"
	JobModeRefresh     JobMode = "refresh"
	JobModePushSweep   JobMode = "push_sweep"
)

// AllJobModes returns every job mode in scheduling order
func AllJobModes() []JobMode {
	return []JobMode{JobModeIncremental, JobModeRefresh, JobModePushSweep, JobModeFull}
}

// ParseJobMode validates a job mode string
func ParseJobMode(s string) (JobMode, error) {
	mode := JobMode(s)
	switch mode {
	case JobModeFull, JobModeIncremental, JobModeRefresh, JobModePushSweep:
		return mode, nil
	}
	return "", ErrInvalidJobMode
}

// JobTrigger records who asked for a job
type JobTrigger string

const (
	JobTriggerCron   JobTrigger = "cron"
	JobTriggerManual JobTrigger = "manual"
)

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusPartial JobStatus = "PARTIAL"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusSkipped JobStatus = "SKIPPED"
)

// SyncJob is one scheduled run of a sync mode for an entity type
type SyncJob struct {
	ID          uuid.UUID              `json:"id"`
	EntityType  integration.EntityType `json:"entity_type"`
	Mode        JobMode                `json:"mode"`
	Trigger     JobTrigger             `json:"trigger"`
	Status      JobStatus              `json:"status"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
	NextRetryAt *time.Time             `json:"next_retry_at,omitempty"`

	// Results
	RunID   *uuid.UUID               `json:"run_id,omitempty"`
	Summary integration.BatchSummary `json:"summary"`
	Pushed  int                      `json:"pushed,omitempty"`
}

// NewSyncJob creates a pending job
func NewSyncJob(entityType integration.EntityType, mode JobMode, trigger JobTrigger, maxRetries int) *SyncJob {
	return &SyncJob{
		ID:         uuid.New(),
		EntityType: entityType,
		Mode:       mode,
		Trigger:    trigger,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

func (j *SyncJob) key() string {
	return string(j.EntityType) + ":" + string(j.Mode)
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.Error = ""
}

// RecordRun copies the result of a coordinator run onto the job
func (j *SyncJob) RecordRun(run *integration.SyncRun) {
	if run == nil {
		return
	}
	id := run.ID
	j.RunID = &id
	j.Summary = run.Summary
}

// Complete marks the job as finished. A run that errored on some records is partial.
func (j *SyncJob) Complete() {
	now := time.Now()
	j.CompletedAt = &now
	if j.Summary.Errored > 0 {
		j.Status = JobStatusPartial
		return
	}
	j.Status = JobStatusSuccess
}

// Skip marks the job as not run, e.g. when the run lock is held elsewhere
func (j *SyncJob) Skip(reason string) {
	now := time.Now()
	j.Status = JobStatusSkipped
	j.CompletedAt = &now
	j.Error = reason
}

// Fail marks the job as failed
func (j *SyncJob) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *SyncJob) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// RetryDelay returns the exponential backoff for the next retry, capped at MaxRetryDelay
func (j *SyncJob) RetryDelay(baseDelay time.Duration) time.Duration {
	delay := baseDelay << j.RetryCount
	if delay <= 0 || delay > MaxRetryDelay {
		return MaxRetryDelay
	}
	return delay
}

// ScheduleRetry schedules the job for retry with exponential backoff
func (j *SyncJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	delay := j.RetryDelay(baseDelay)
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	return delay
}

// MaxRetryDelay caps the retry backoff
const MaxRetryDelay = 30 * time.Minute
