package integration

import (
	"time"

	"github.com/google/uuid"
)

// SyncMode is the kind of sync run
type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
	SyncModeResync      SyncMode = "resync"
	SyncModeRefresh     SyncMode = "refresh"
	SyncModeWebhook     SyncMode = "webhook"
)

// SyncRunStatus is the outcome of a sync run
type SyncRunStatus string

const (
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusSuccess   SyncRunStatus = "success"
	SyncRunStatusPartial   SyncRunStatus = "partial"
	SyncRunStatusFailed    SyncRunStatus = "failed"
	SyncRunStatusCancelled SyncRunStatus = "cancelled"
)

// ApplyOutcome is what happened to one record in the pipeline
type ApplyOutcome string

const (
	OutcomeCreated   ApplyOutcome = "created"
	OutcomeUpdated   ApplyOutcome = "updated"
	OutcomeUnchanged ApplyOutcome = "unchanged"
	OutcomeStale     ApplyOutcome = "stale"
	OutcomeSkipped   ApplyOutcome = "skipped"
	OutcomeErrored   ApplyOutcome = "errored"
	OutcomeGone      ApplyOutcome = "gone"
)

// BatchSummary aggregates per-record outcomes
type BatchSummary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Stale     int `json:"stale"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
	Gone      int `json:"gone"`
}

// Add counts one outcome
func (s *BatchSummary) Add(o ApplyOutcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeStale:
		s.Stale++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeErrored:
		s.Errored++
	case OutcomeGone:
		s.Gone++
	}
}

// Merge adds another summary into this one
func (s *BatchSummary) Merge(o BatchSummary) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Unchanged += o.Unchanged
	s.Stale += o.Stale
	s.Skipped += o.Skipped
	s.Errored += o.Errored
	s.Gone += o.Gone
}

// Total returns the number of records seen
func (s BatchSummary) Total() int {
	return s.Created + s.Updated + s.Unchanged + s.Stale + s.Skipped + s.Errored + s.Gone
}

// Written returns the number of business writes
func (s BatchSummary) Written() int {
	return s.Created + s.Updated
}

// SyncRun is the history record of one sync run
type SyncRun struct {
	ID         uuid.UUID
	EntityType EntityType
	AccountID  string
	Mode       SyncMode
	Status     SyncRunStatus
	Summary    BatchSummary
	Pages      int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewSyncRun starts a run record
func NewSyncRun(entityType EntityType, accountID string, mode SyncMode) *SyncRun {
	return &SyncRun{
		ID:         uuid.New(),
		EntityType: entityType,
		AccountID:  accountID,
		Mode:       mode,
		Status:     SyncRunStatusRunning,
		StartedAt:  time.Now(),
	}
}

// Finish closes the run and derives its status from the error and summary
func (r *SyncRun) Finish(err error, cancelled bool) {
	now := time.Now()
	r.FinishedAt = &now
	switch {
	case cancelled:
		r.Status = SyncRunStatusCancelled
	case err != nil:
		r.Status = SyncRunStatusFailed
	case r.Summary.Errored > 0:
		r.Status = SyncRunStatusPartial
	default:
		r.Status = SyncRunStatusSuccess
	}
	if err != nil {
		r.Error = truncateMessage(err.Error())
	}
}

// Duration returns how long the run took
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
