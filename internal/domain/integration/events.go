package integration

import (
	"github.com/syncbridge/backend/internal/domain/shared"
)

// Event type constants
const (
	// EventTypeEntityChanged is published when an inbound sync changed an entity
	EventTypeEntityChanged = "integration.entity.changed"
	// EventTypeEntityModified is published when a local edit changed an entity
	EventTypeEntityModified = "integration.entity.modified"
)

// ChangeSource tells where a change came from
type ChangeSource string

const (
	ChangeSourceInbound ChangeSource = "inbound"
	ChangeSourceLocal   ChangeSource = "local"
)

// EntityChangedEvent notifies subscribers that an entity's business fields changed
type EntityChangedEvent struct {
	shared.BaseDomainEvent
	EntityType      EntityType      `json:"entity_type"`
	Account         string          `json:"account"`
	ExternalID      string          `json:"external_id"`
	Source          ChangeSource    `json:"source"`
	ChangedFields   []string        `json:"changed_fields,omitempty"`
	CanonicalStatus CanonicalStatus `json:"canonical_status"`
}

// NewEntityChangedEvent creates an inbound change notification
func NewEntityChangedEvent(e *SyncEntity, changed []string) *EntityChangedEvent {
	return newEntityEvent(EventTypeEntityChanged, ChangeSourceInbound, e, changed)
}

// NewEntityModifiedEvent creates a local edit notification
func NewEntityModifiedEvent(e *SyncEntity, changed []string) *EntityChangedEvent {
	return newEntityEvent(EventTypeEntityModified, ChangeSourceLocal, e, changed)
}

func newEntityEvent(eventType string, source ChangeSource, e *SyncEntity, changed []string) *EntityChangedEvent {
	return &EntityChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, string(e.EntityType), e.Key().String(), e.AccountID),
		EntityType:      e.EntityType,
		Account:         e.AccountID,
		ExternalID:      e.ExternalID,
		Source:          source,
		ChangedFields:   changed,
		CanonicalStatus: e.CanonicalStatus,
	}
}

// Key returns the identity of the changed entity
func (e *EntityChangedEvent) Key() EntityKey {
	return EntityKey{EntityType: e.EntityType, AccountID: e.Account, ExternalID: e.ExternalID}
}
