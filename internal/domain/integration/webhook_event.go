package integration

import (
	"fmt"
	"time"
)

// WebhookAction is what a webhook event asks the engine to do
type WebhookAction string

const (
	// WebhookActionUpsert creates or updates the referenced entity
	WebhookActionUpsert WebhookAction = "upsert"
	// WebhookActionDelete marks the referenced entity as gone
	WebhookActionDelete WebhookAction = "delete"
	// WebhookActionMessage appends a child message to a conversation
	WebhookActionMessage WebhookAction = "message"
)

// WebhookEvent is one normalized webhook notification
type WebhookEvent struct {
	Provider Provider `json:"provider"`
	// EventID is the sender's delivery id, used for deduplication
	EventID    string        `json:"event_id"`
	EventType  string        `json:"event_type"`
	Action     WebhookAction `json:"action"`
	EntityType EntityType    `json:"entity_type"`
	AccountID  string        `json:"account_id"`
	ExternalID string        `json:"external_id"`
	// MessageID is the child id carried by message events
	MessageID string `json:"message_id,omitempty"`
	// Record is set for fat events; thin events are hydrated with FetchOne
	Record     *RemoteRecord `json:"record,omitempty"`
	ReceivedAt time.Time     `json:"received_at"`
}

// DedupKey is the idempotency key of the delivery
func (e *WebhookEvent) DedupKey() string {
	return fmt.Sprintf("webhook:%s:%s", e.Provider, e.EventID)
}

// Key returns the identity of the referenced entity
func (e *WebhookEvent) Key() EntityKey {
	return EntityKey{EntityType: e.EntityType, AccountID: e.AccountID, ExternalID: e.ExternalID}
}

// IsThin returns true if the event carries only the entity reference
func (e *WebhookEvent) IsThin() bool {
	return e.Record == nil
}

// Validate checks that the event is routable
func (e *WebhookEvent) Validate() error {
	if !e.Provider.IsValid() {
		return fmt.Errorf("%w: provider %q", ErrWebhookMalformed, e.Provider)
	}
	if e.EventID == "" {
		return fmt.Errorf("%w: missing event id", ErrWebhookMalformed)
	}
	if !e.EntityType.IsValid() {
		return fmt.Errorf("%w: entity type %q", ErrWebhookMalformed, e.EntityType)
	}
	if e.ExternalID == "" {
		return fmt.Errorf("%w: missing external id", ErrWebhookMalformed)
	}
	switch e.Action {
	case WebhookActionUpsert, WebhookActionDelete:
	case WebhookActionMessage:
		if e.MessageID == "" {
			return fmt.Errorf("%w: message event without message id", ErrWebhookMalformed)
		}
	default:
		return fmt.Errorf("%w: action %q", ErrWebhookMalformed, e.Action)
	}
	return nil
}
