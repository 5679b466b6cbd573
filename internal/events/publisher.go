// Package events provides an in-process publish/subscribe bus for domain
// events. Delivery is synchronous and best-effort: the state change that
// produced an event is already committed by the time handlers run, so a
// handler failure is logged and isolated, never propagated back.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
)

// Bus implements ports.EventPublisher with per-event-type handler lists.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	logger   *zap.Logger
}

// NewBus creates an in-process event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]ports.EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type. Registration happens
// during startup wiring; handlers cannot be removed.
func (b *Bus) Subscribe(eventType string, handler ports.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	b.logger.Debug("Event handler subscribed",
		zap.String("event_type", eventType),
		zap.String("handler", handler.Name()),
	)
}

// Publish delivers the event to every handler registered for its type, in
// registration order. Always returns nil; failures are logged per handler.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.EventType()]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Event handler failed",
				zap.String("event_type", event.EventType()),
				zap.String("handler", handler.Name()),
				zap.Error(err),
			)
		}
	}

	return nil
}
