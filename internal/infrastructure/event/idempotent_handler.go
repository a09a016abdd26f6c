package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// Delivery results reported to a DeliveryRecorder
const (
	DeliveryProcessed = "processed"
	DeliveryDuplicate = "duplicate"
	DeliveryFailed    = "failed"
)

// DeliveryRecorder observes each delivery made through an IdempotentHandler
type DeliveryRecorder interface {
	RecordEventDelivery(ctx context.Context, consumer, eventType, result string)
}

type nopDeliveryRecorder struct{}

func (nopDeliveryRecorder) RecordEventDelivery(context.Context, string, string, string) {}

// IdempotentHandler delivers each event id at most once per consumer within
// the configured TTL. Consumers sharing a store are told apart by their key
// prefix.
type IdempotentHandler struct {
	handler  shared.EventHandler
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	consumer string
	recorder DeliveryRecorder
	logger   *zap.Logger
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides the TTL and the on/off switch
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithKeyPrefix names the consumer. Keys are stored as "<prefix>:<event id>".
func WithKeyPrefix(prefix string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.consumer = prefix
	}
}

// WithDeliveryRecorder reports every delivery result to r
func WithDeliveryRecorder(r DeliveryRecorder) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// NewIdempotentHandler wraps handler with dedup on store
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler:  handler,
		store:    store,
		config:   shared.DefaultIdempotencyConfig(),
		recorder: nopDeliveryRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types of the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

func (h *IdempotentHandler) key(event shared.DomainEvent) string {
	if h.consumer == "" {
		return event.EventID().String()
	}
	return h.consumer + ":" + event.EventID().String()
}

// Handle delivers the event unless its key is already marked. An unreachable
// store does not block delivery. The key stays marked when the wrapped
// handler fails.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := eventFields(event, zap.String("consumer", h.consumer))

	if h.config.Enabled {
		fresh, err := h.store.MarkProcessed(ctx, h.key(event), h.config.TTL)
		switch {
		case err != nil:
			h.logger.Warn("Idempotency store unavailable, delivering anyway", append(fields, zap.Error(err))...)
		case !fresh:
			h.logger.Debug("Duplicate event skipped", fields...)
			h.recorder.RecordEventDelivery(ctx, h.consumer, event.EventType(), DeliveryDuplicate)
			return nil
		}
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.logger.Error("Event handler failed", append(fields, zap.Error(err))...)
		h.recorder.RecordEventDelivery(ctx, h.consumer, event.EventType(), DeliveryFailed)
		return err
	}
	h.recorder.RecordEventDelivery(ctx, h.consumer, event.EventType(), DeliveryProcessed)
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
