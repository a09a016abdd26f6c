package integration

import (
	"fmt"
	"maps"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// SyncStatus is the sync state of a local entity
type SyncStatus string

const (
	// SyncStatusPending is a created or edited entity not yet confirmed by a sync
	SyncStatusPending SyncStatus = "PENDING"
	// SyncStatusSynced is an entity matching the remote as of LastSyncedAt
	SyncStatusSynced SyncStatus = "SYNCED"
	// SyncStatusError is an entity whose last sync attempt failed
	SyncStatusError SyncStatus = "ERROR"
	// SyncStatusGone is an entity the remote no longer has. Terminal.
	SyncStatusGone SyncStatus = "GONE"
	// SyncStatusDisabled is an entity excluded from polling after repeated failures
	SyncStatusDisabled SyncStatus = "DISABLED"
)

// IsValid returns true if the status is known
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusError, SyncStatusGone, SyncStatusDisabled:
		return true
	}
	return false
}

// String returns the string representation
func (s SyncStatus) String() string {
	return string(s)
}

// EntityKey identifies one remote object. At most one local entity exists per key.
type EntityKey struct {
	EntityType EntityType
	AccountID  string
	ExternalID string
}

// String returns the key as entityType/account/externalID
func (k EntityKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.EntityType, k.AccountID, k.ExternalID)
}

// SyncMetadata is the sync-internal part of an entity. Writing it never
// touches business fields or ModifiedAt.
type SyncMetadata struct {
	SyncStatus            SyncStatus
	LastSyncedAt          *time.Time
	SyncErrorMessage      string
	ConsecutiveErrorCount int
	LoopGuard             bool
	NeedsRevalidation     bool
}

// SyncEntity is the local mirror of one remote object
type SyncEntity struct {
	ID         uuid.UUID
	EntityType EntityType
	AccountID  string
	ExternalID string

	CanonicalStatus  CanonicalStatus
	RemoteStatusCode string
	RemoteStatusName string
	Fields           map[string]any
	ChildIDs         []string
	ParentType       EntityType
	ParentExternalID string
	// RemoteUpdatedAt is the remote system's last modification time
	RemoteUpdatedAt *time.Time

	SyncStatus SyncStatus
	// LastSyncedAt is bumped by every successful inbound sync or push
	LastSyncedAt *time.Time
	// ModifiedAt is bumped only by local business edits
	ModifiedAt            *time.Time
	SyncErrorMessage      string
	ConsecutiveErrorCount int
	// LoopGuard is set while an inbound sync is writing the entity
	LoopGuard bool
	// NeedsRevalidation is set when an import skipped non-critical checks
	NeedsRevalidation bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSyncEntity creates an unseen entity for the record's key
func NewSyncEntity(key EntityKey) *SyncEntity {
	now := time.Now()
	return &SyncEntity{
		ID:         uuid.New(),
		EntityType: key.EntityType,
		AccountID:  key.AccountID,
		ExternalID: key.ExternalID,
		Fields:     make(map[string]any),
		SyncStatus: SyncStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Key returns the identity of the entity
func (e *SyncEntity) Key() EntityKey {
	return EntityKey{EntityType: e.EntityType, AccountID: e.AccountID, ExternalID: e.ExternalID}
}

// Clone returns a deep copy
func (e *SyncEntity) Clone() *SyncEntity {
	if e == nil {
		return nil
	}
	c := *e
	c.Fields = maps.Clone(e.Fields)
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}
	if e.ChildIDs != nil {
		c.ChildIDs = append([]string(nil), e.ChildIDs...)
	}
	c.RemoteUpdatedAt = cloneTime(e.RemoteUpdatedAt)
	c.LastSyncedAt = cloneTime(e.LastSyncedAt)
	c.ModifiedAt = cloneTime(e.ModifiedAt)
	return &c
}

// ApplyRemote overwrites the business fields with the remote record
func (e *SyncEntity) ApplyRemote(rec *RemoteRecord, status CanonicalStatus) {
	e.CanonicalStatus = status
	e.RemoteStatusCode = rec.StatusCode
	e.RemoteStatusName = rec.StatusName
	e.Fields = maps.Clone(rec.Fields)
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.ChildIDs = append([]string(nil), rec.ChildIDs...)
	e.ParentType = rec.ParentType
	e.ParentExternalID = rec.ParentExternalID
	if rec.RemoteUpdatedAt != nil {
		e.RemoteUpdatedAt = cloneTime(rec.RemoteUpdatedAt)
	}
}

// IsStale returns true if the stored remote version is newer than the record
func (e *SyncEntity) IsStale(rec *RemoteRecord) bool {
	if e.RemoteUpdatedAt == nil || rec.RemoteUpdatedAt == nil {
		return false
	}
	return e.RemoteUpdatedAt.After(*rec.RemoteUpdatedAt)
}

// MarkSynced records a successful sync and resets the failure counter
func (e *SyncEntity) MarkSynced(now time.Time) {
	t := now
	e.LastSyncedAt = &t
	e.SyncStatus = SyncStatusSynced
	e.SyncErrorMessage = ""
	e.ConsecutiveErrorCount = 0
	e.UpdatedAt = now
}

// RecordFailure records a failed sync attempt and returns its severity.
// Gone failures are terminal and do not count toward the circuit breaker.
func (e *SyncEntity) RecordFailure(err error, now time.Time, policy CircuitBreakerPolicy) Severity {
	if Classify(err) == ErrorClassGone {
		e.MarkGone(now)
		return SeverityLow
	}

	e.ConsecutiveErrorCount++
	e.SyncErrorMessage = truncateMessage(err.Error())
	e.UpdatedAt = now
	if policy.ShouldDisable(e.ConsecutiveErrorCount) {
		e.SyncStatus = SyncStatusDisabled
	} else {
		e.SyncStatus = SyncStatusError
	}
	return policy.SeverityFor(e.ConsecutiveErrorCount)
}

// MarkGone marks the entity as removed remotely. Terminal; the entity is kept.
func (e *SyncEntity) MarkGone(now time.Time) {
	e.SyncStatus = SyncStatusGone
	e.SyncErrorMessage = "entity no longer exists remotely"
	e.UpdatedAt = now
}

// ResetCircuit clears the failure counter and re-admits a disabled entity
func (e *SyncEntity) ResetCircuit() {
	e.ConsecutiveErrorCount = 0
	e.SyncErrorMessage = ""
	if e.SyncStatus == SyncStatusDisabled || e.SyncStatus == SyncStatusError {
		e.SyncStatus = SyncStatusPending
	}
}

// IsCircuitOpen returns true if scheduled passes must skip the entity
func (e *SyncEntity) IsCircuitOpen() bool {
	return e.SyncStatus == SyncStatusDisabled || e.SyncStatus == SyncStatusGone
}

// IsPollable returns true if a refresh pass should re-fetch the entity
func (e *SyncEntity) IsPollable(terminal bool) bool {
	if e.IsCircuitOpen() {
		return false
	}
	return e.NeedsRevalidation || !terminal
}

// NeedsPush returns true if a local edit has not yet been pushed
func (e *SyncEntity) NeedsPush() bool {
	if e.ModifiedAt == nil {
		return false
	}
	if e.LastSyncedAt == nil {
		return true
	}
	return e.ModifiedAt.After(*e.LastSyncedAt)
}

// ApplyLocalEdit merges a local business edit and bumps ModifiedAt
func (e *SyncEntity) ApplyLocalEdit(fields map[string]any, status CanonicalStatus, now time.Time) {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	maps.Copy(e.Fields, fields)
	if status != "" {
		e.CanonicalStatus = status
	}
	t := now
	e.ModifiedAt = &t
	e.UpdatedAt = now
}

// Metadata returns the sync-internal state
func (e *SyncEntity) Metadata() SyncMetadata {
	return SyncMetadata{
		SyncStatus:            e.SyncStatus,
		LastSyncedAt:          cloneTime(e.LastSyncedAt),
		SyncErrorMessage:      e.SyncErrorMessage,
		ConsecutiveErrorCount: e.ConsecutiveErrorCount,
		LoopGuard:             e.LoopGuard,
		NeedsRevalidation:     e.NeedsRevalidation,
	}
}

// Validate checks the identity invariants
func (e *SyncEntity) Validate() error {
	if e.ExternalID == "" {
		return fmt.Errorf("%w: external id is required", ErrValidationFailed)
	}
	if !e.EntityType.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, e.EntityType)
	}
	if e.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrValidationFailed)
	}
	if !e.SyncStatus.IsValid() {
		return fmt.Errorf("%w: sync status %q", ErrValidationFailed, e.SyncStatus)
	}
	return nil
}

const maxErrorMessageLen = 1000

func truncateMessage(s string) string {
	return TruncateUTF8(s, maxErrorMessageLen)
}

// TruncateUTF8 cuts s to at most limit bytes without splitting a rune
func TruncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
