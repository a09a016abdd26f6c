package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrJobAlreadyQueued is returned when the same entity type and mode is already pending or running
	ErrJobAlreadyQueued = errors.New("job already queued for entity type and mode")

	// ErrInvalidJobMode is returned for unknown job modes
	ErrInvalidJobMode = errors.New("invalid job mode")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
