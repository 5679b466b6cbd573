package ports

import (
	"context"

	"github.com/predictkings/billing-service/internal/domain"
)

// EventHandler consumes domain events published in-process.
type EventHandler interface {
	Name() string
	Handle(ctx context.Context, event domain.Event) error
}

// EventPublisher fans domain events out synchronously to every handler
// registered for the event type. A handler failure is logged and isolated;
// it never rolls back the state change that produced the event.
type EventPublisher interface {
	Subscribe(eventType string, handler EventHandler)
	Publish(ctx context.Context, event domain.Event) error
}
