package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gateway identifies a payment provider that delivers webhooks.
type Gateway string

const (
	GatewayPaystack Gateway = "paystack"
	GatewayAlatPay  Gateway = "alatpay"
	GatewayCoralPay Gateway = "coralpay"
	GatewayCredo    Gateway = "credo"
)

// Valid reports whether g is a supported gateway.
func (g Gateway) Valid() bool {
	switch g {
	case GatewayPaystack, GatewayAlatPay, GatewayCoralPay, GatewayCredo:
		return true
	}
	return false
}

// PaymentStatus is the canonical status of a payment as the ledger tracks
// it, independent of any provider's vocabulary.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// NormalizedPaymentEvent is one verified webhook delivery translated into
// the canonical shape. Fields come only from payloads whose signature
// already checked out.
type NormalizedPaymentEvent struct {
	Gateway       Gateway
	ExternalID    string
	CustomerEmail string
	CustomerPhone string
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	Plan          PlanType
	RawPayload    []byte
	ReceivedAt    time.Time
}

// Validate checks the invariants every adapter must satisfy before an
// event enters the pipeline.
func (e *NormalizedPaymentEvent) Validate() error {
	if !e.Gateway.Valid() {
		return NewDomainError(ErrorCodeGatewayUnknown, "event has no valid gateway")
	}
	if e.ExternalID == "" {
		return NewDomainError(ErrorCodePayloadMalformed, "event missing external transaction id")
	}
	if e.CustomerEmail == "" && e.CustomerPhone == "" {
		return NewDomainError(ErrorCodePayloadMalformed, "event missing customer reference")
	}
	if e.Amount.IsNegative() {
		return NewDomainError(ErrorCodePayloadMalformed, "event has negative amount")
	}
	return nil
}
