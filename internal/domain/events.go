package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is an immutable fact published to in-process collaborators.
type Event interface {
	EventType() string
	OccurredAt() time.Time
}

// EventTypeSubscriptionActivated is emitted exactly once per transition
// into created or renewed, never on no-ops or failures.
const EventTypeSubscriptionActivated = "subscription.activated"

// SubscriptionActivatedEvent records that a payment turned into access.
type SubscriptionActivatedEvent struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	Plan           PlanType
	ExpiryDate     time.Time
	AmountPaid     decimal.Decimal
	Currency       string
	Renewal        bool
	Timestamp      time.Time
}

func (e SubscriptionActivatedEvent) EventType() string {
	return EventTypeSubscriptionActivated
}

func (e SubscriptionActivatedEvent) OccurredAt() time.Time {
	return e.Timestamp
}
