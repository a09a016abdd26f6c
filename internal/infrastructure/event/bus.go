package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// TaskKindDomainEvent is the task kind of events dispatched through a TaskQueue
const TaskKindDomainEvent = "domain_event"

// InMemoryEventBus implements shared.EventBus with in-process pub/sub. By
// default handlers run synchronously inside Publish. With a dispatch queue,
// events are serialized into tasks and handled by the queue workers.
type InMemoryEventBus struct {
	registry   *HandlerRegistry
	logger     *zap.Logger
	queue      shared.TaskQueue
	serializer *EventSerializer
	running    atomic.Bool
}

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithDispatchQueue routes published events through queue. Every event type
// published must be registered with serializer.
func WithDispatchQueue(queue shared.TaskQueue, serializer *EventSerializer) BusOption {
	return func(b *InMemoryEventBus) {
		b.queue = queue
		b.serializer = serializer
	}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	b := &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.queue != nil {
		b.queue.Register(TaskKindDomainEvent, b.handleTask)
	}
	return b
}

// Publish delivers events to the registered handlers. Handler errors are
// logged and do not fail the publish.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		if b.queue != nil {
			err := b.enqueue(ctx, event)
			if err == nil {
				continue
			}
			b.logger.Warn("event queue unavailable, dispatching inline",
				eventFields(event, zap.Error(err))...,
			)
		}
		b.dispatch(ctx, event)
	}
	return nil
}

func (b *InMemoryEventBus) enqueue(ctx context.Context, event shared.DomainEvent) error {
	envelope, err := b.serializer.Wrap(event)
	if err != nil {
		return err
	}
	task, err := shared.NewTask(TaskKindDomainEvent, envelope)
	if err != nil {
		return err
	}
	return b.queue.Submit(ctx, task)
}

// handleTask restores a queued event and dispatches it
func (b *InMemoryEventBus) handleTask(ctx context.Context, task shared.Task) error {
	var envelope Envelope
	if err := task.Decode(&envelope); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	event, err := b.serializer.Unwrap(envelope)
	if err != nil {
		return err
	}
	b.dispatch(ctx, event)
	return nil
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, event shared.DomainEvent) {
	for _, handler := range b.registry.GetHandlers(event.EventType()) {
		if err := b.dispatchToHandler(ctx, handler, event); err != nil {
			b.logger.Error("handler failed to process event", eventFields(event, zap.Error(err))...)
		}
	}
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start marks the bus as running. The dispatch queue has its own lifecycle.
func (b *InMemoryEventBus) Start(_ context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started", zap.Bool("queued", b.queue != nil))
	return nil
}

// Stop marks the bus as stopped
func (b *InMemoryEventBus) Stop(_ context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped")
	return nil
}

// dispatchToHandler runs one handler, converting a panic into an error
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

func eventFields(event shared.DomainEvent, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_id", event.AggregateID()),
	}, extra...)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
