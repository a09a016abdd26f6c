package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// Envelope carries a serialized event with the type needed to restore it
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventSerializer handles JSON serialization of domain events
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// Register maps an event type to the Go type used to deserialize it.
// eventType must match what EventType() returns.
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize serializes a domain event to JSON bytes
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Deserialize restores a domain event of a registered type
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("type %s does not implement DomainEvent", t)
	}
	return event, nil
}

// Wrap serializes an event into an envelope. Fails for unregistered types
// so an event cannot be queued without a way back.
func (s *EventSerializer) Wrap(event shared.DomainEvent) (Envelope, error) {
	if !s.IsRegistered(event.EventType()) {
		return Envelope{}, fmt.Errorf("unknown event type: %s", event.EventType())
	}
	data, err := s.Serialize(event)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: event.EventType(), Data: data}, nil
}

// Unwrap restores the event carried by an envelope
func (s *EventSerializer) Unwrap(envelope Envelope) (shared.DomainEvent, error) {
	return s.Deserialize(envelope.Type, envelope.Data)
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns all registered event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
