package integration

import (
	"fmt"
	"strings"
)

// Provider identifies an external system of record
type Provider string

const (
	// ProviderOrderAPI is the order/quote management REST API
	ProviderOrderAPI Provider = "order_api"
	// ProviderProofAPI is the proofing/approval GraphQL API
	ProviderProofAPI Provider = "proof_api"
	// ProviderMessaging is the conversational messaging platform
	ProviderMessaging Provider = "messaging"
)

// IsValid returns true if the provider is known
func (p Provider) IsValid() bool {
	switch p {
	case ProviderOrderAPI, ProviderProofAPI, ProviderMessaging:
		return true
	}
	return false
}

// String returns the string representation
func (p Provider) String() string {
	return string(p)
}

// ParseProvider parses a provider code
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, s)
	}
	return p, nil
}

// EntityType identifies the kind of remote entity being mirrored
type EntityType string

const (
	EntityTypeOrder        EntityType = "order"
	EntityTypeQuote        EntityType = "quote"
	EntityTypeProof        EntityType = "proof"
	EntityTypeConversation EntityType = "conversation"
)

// AllEntityTypes returns every supported entity type
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityTypeOrder,
		EntityTypeQuote,
		EntityTypeProof,
		EntityTypeConversation,
	}
}

// IsValid returns true if the entity type is known
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeOrder, EntityTypeQuote, EntityTypeProof, EntityTypeConversation:
		return true
	}
	return false
}

// String returns the string representation
func (t EntityType) String() string {
	return string(t)
}

// Provider returns the external system that owns this entity type
func (t EntityType) Provider() Provider {
	switch t {
	case EntityTypeOrder, EntityTypeQuote:
		return ProviderOrderAPI
	case EntityTypeProof:
		return ProviderProofAPI
	case EntityTypeConversation:
		return ProviderMessaging
	}
	return ""
}

// WatermarkKind returns how incremental syncs of this entity type are bounded.
// Orders and quotes are id-ordered feeds; proofs and conversations are
// ordered by remote update time.
func (t EntityType) WatermarkKind() WatermarkKind {
	switch t {
	case EntityTypeOrder, EntityTypeQuote:
		return WatermarkKindID
	}
	return WatermarkKindTimestamp
}

// ParseEntityType parses an entity type name
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntityType, s)
	}
	return t, nil
}
