package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Remote records
// ---------------------------------------------------------------------------

// RemoteRecord is one remote entity as returned by an adapter, already
// reduced to the allow-listed fields the local copy keeps
type RemoteRecord struct {
	ExternalID string     `json:"external_id" validate:"required,max=128"`
	EntityType EntityType `json:"entity_type" validate:"required,oneof=order quote proof conversation"`
	AccountID  string     `json:"account_id" validate:"required,max=128"`
	// StatusCode is the remote status id (numeric ids are stringified)
	StatusCode string `json:"status_code,omitempty"`
	// StatusName is the remote status display label
	StatusName string         `json:"status_name,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	// ChildIDs are the external ids of owned children (line items, messages, versions)
	ChildIDs         []string   `json:"child_ids,omitempty"`
	ParentType       EntityType `json:"parent_type,omitempty"`
	ParentExternalID string     `json:"parent_external_id,omitempty"`
	RemoteUpdatedAt  *time.Time `json:"remote_updated_at,omitempty"`
	// Deleted is set when the remote reports the entity as removed
	Deleted bool            `json:"deleted,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Key returns the identity of the record
func (r *RemoteRecord) Key() EntityKey {
	return EntityKey{EntityType: r.EntityType, AccountID: r.AccountID, ExternalID: r.ExternalID}
}

// HasParent returns true if the record references a parent entity
func (r *RemoteRecord) HasParent() bool {
	return r.ParentType != "" && r.ParentExternalID != ""
}

// Page is one page of a remote listing
type Page struct {
	Records    []*RemoteRecord
	HasMore    bool
	NextCursor string
}

// PushRequest is a status update sent to the remote system
type PushRequest struct {
	Status           CanonicalStatus
	RemoteStatusCode string
	Fields           map[string]any
}

// PushResult is the remote acknowledgement of a push
type PushResult struct {
	ExternalID      string
	RemoteUpdatedAt *time.Time
	Accepted        bool
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// RemoteAdapter is the port to one external system of record.
// Implementations must be safe for concurrent use on distinct entities.
type RemoteAdapter interface {
	Provider() Provider
	EntityTypes() []EntityType
	AccountID() string

	// Authenticate obtains or refreshes the credential
	Authenticate(ctx context.Context) error

	// FetchPage lists entities newest first starting at cursor.
	// An empty cursor starts from the beginning of the feed.
	FetchPage(ctx context.Context, entityType EntityType, cursor string, pageSize int) (*Page, error)

	// FetchOne fetches a single entity. Returns ErrRemoteNotFound when the
	// remote answers 404.
	FetchOne(ctx context.Context, entityType EntityType, externalID string) (*RemoteRecord, error)

	// Push sends a status update to the remote system
	Push(ctx context.Context, entityType EntityType, externalID string, req PushRequest) (*PushResult, error)

	WebhookParser
}

// WebhookParser converts provider webhook bodies into normalized events
type WebhookParser interface {
	ParseWebhook(body []byte, contentType string) ([]WebhookEvent, error)
}

// ---------------------------------------------------------------------------
// Adapter registry
// ---------------------------------------------------------------------------

// AdapterRegistry resolves adapters by provider and entity type
type AdapterRegistry struct {
	mu         sync.RWMutex
	byProvider map[Provider]RemoteAdapter
	byEntity   map[EntityType]RemoteAdapter
}

// NewAdapterRegistry creates an empty registry
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		byProvider: make(map[Provider]RemoteAdapter),
		byEntity:   make(map[EntityType]RemoteAdapter),
	}
}

// Register adds an adapter for its provider and every entity type it serves
func (r *AdapterRegistry) Register(adapter RemoteAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byProvider[adapter.Provider()]; exists {
		return fmt.Errorf("%w: %s", ErrAdapterAlreadyExists, adapter.Provider())
	}
	for _, t := range adapter.EntityTypes() {
		if _, exists := r.byEntity[t]; exists {
			return fmt.Errorf("%w: %s", ErrAdapterAlreadyExists, t)
		}
	}

	r.byProvider[adapter.Provider()] = adapter
	for _, t := range adapter.EntityTypes() {
		r.byEntity[t] = adapter
	}
	return nil
}

// ForEntity returns the adapter serving an entity type
func (r *AdapterRegistry) ForEntity(entityType EntityType) (RemoteAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byEntity[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, entityType)
	}
	return a, nil
}

// ForProvider returns the adapter of a provider
func (r *AdapterRegistry) ForProvider(provider Provider) (RemoteAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byProvider[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	return a, nil
}

// EntityTypes returns the registered entity types in stable order
func (r *AdapterRegistry) EntityTypes() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EntityType, 0, len(r.byEntity))
	for t := range r.byEntity {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
