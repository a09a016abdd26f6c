package event

import (
	"github.com/syncbridge/backend/internal/domain/integration"
)

// RegisterAllEvents registers every domain event type with the serializer.
// Required before events can travel through a dispatch queue.
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(integration.EventTypeEntityChanged, &integration.EntityChangedEvent{})
	serializer.Register(integration.EventTypeEntityModified, &integration.EntityChangedEvent{})
}
