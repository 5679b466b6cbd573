package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StandardizedTransaction is a persisted ledger row: one per payment event
// a gateway has ever reported, keyed by (gateway, external transaction id).
// Rows are created on first delivery and their status mutated in place as
// the gateway's view of the payment evolves; they are never deleted.
type StandardizedTransaction struct {
	ID          uuid.UUID
	UserID      *uuid.UUID
	Email       string
	Gateway     Gateway
	ExternalID  string
	Amount      decimal.Decimal
	Currency    string
	Plan        PlanType
	Status      PaymentStatus
	RawPayload  []byte
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// IsCompleted reports whether the gateway has confirmed the payment.
func (t *StandardizedTransaction) IsCompleted() bool {
	return t.Status == PaymentStatusCompleted
}

// StatusAdvances reports whether moving from current to next is forward
// progress for a ledger row. Completed never regresses; failed may still be
// overridden by a late completed, since gateways are authoritative on final
// success.
func StatusAdvances(current, next PaymentStatus) bool {
	if current == next {
		return false
	}
	switch current {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusFailed:
		return next == PaymentStatusCompleted
	case PaymentStatusCompleted:
		return false
	}
	return false
}
