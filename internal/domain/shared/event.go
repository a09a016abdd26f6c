package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	// AggregateID is the stable key of the entity the event is about
	AggregateID() string
	AggregateType() string
	AccountID() string
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	AggID        string    `json:"aggregate_id"`
	AggType      string    `json:"aggregate_type"`
	AccountIDVal string    `json:"account_id"`
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID returns the key of the entity that produced this event
func (e *BaseDomainEvent) AggregateID() string {
	return e.AggID
}

// AggregateType returns the type of the entity
func (e *BaseDomainEvent) AggregateType() string {
	return e.AggType
}

// AccountID returns the remote account the entity belongs to
func (e *BaseDomainEvent) AccountID() string {
	return e.AccountIDVal
}

// NewBaseDomainEvent creates a new base domain event
func NewBaseDomainEvent(eventType, aggType, aggID, accountID string) BaseDomainEvent {
	return BaseDomainEvent{
		ID:           uuid.New(),
		Type:         eventType,
		Timestamp:    time.Now(),
		AggID:        aggID,
		AggType:      aggType,
		AccountIDVal: accountID,
	}
}
