package gateways

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/pkg/timeutil"
)

// SignatureHeaderCredo carries the HMAC-SHA256 of the raw body.
const SignatureHeaderCredo = "X-Credo-Signature"

// Credo adapts Credo transaction webhooks. Credo reports status as a
// numeric code alongside the event name.
type Credo struct {
	secret string
	plans  *PlanTable
}

// NewCredo creates a Credo adapter with the webhook signing secret.
func NewCredo(secret string, plans *PlanTable) *Credo {
	return &Credo{secret: secret, plans: plans}
}

func (c *Credo) Gateway() domain.Gateway {
	return domain.GatewayCredo
}

type credoPayload struct {
	Event string `json:"event"`
	Data  struct {
		TransRef    string      `json:"transRef"`
		TransAmount json.Number `json:"transAmount"`
		Currency    string      `json:"currencyCode"`
		Status      *int        `json:"status"`
		Customer    struct {
			Email string `json:"customerEmail"`
			Phone string `json:"customerPhoneNo"`
		} `json:"customer"`
		Metadata struct {
			Plan string `json:"plan"`
		} `json:"metadata"`
	} `json:"data"`
}

func (c *Credo) Normalize(body []byte, headers http.Header) (*domain.NormalizedPaymentEvent, error) {
	if err := verifyHMAC(sha256.New, c.secret, body, headers.Get(SignatureHeaderCredo)); err != nil {
		return nil, err
	}

	var payload credoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid credo payload", err)
	}

	amount, err := decimal.NewFromString(payload.Data.TransAmount.String())
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid credo amount", err)
	}

	status := credoStatus(payload.Event, payload.Data.Status)
	event := &domain.NormalizedPaymentEvent{
		Gateway:       domain.GatewayCredo,
		ExternalID:    payload.Data.TransRef,
		CustomerEmail: payload.Data.Customer.Email,
		CustomerPhone: payload.Data.Customer.Phone,
		Amount:        amount,
		Currency:      payload.Data.Currency,
		Status:        status,
		RawPayload:    body,
		ReceivedAt:    timeutil.Now(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := resolvePlan(status, payload.Data.Metadata.Plan, event, c.plans); err != nil {
		return nil, err
	}
	return event, nil
}

// A missing status field must never read as success, so only an explicit
// code maps beyond pending.
func credoStatus(event string, code *int) domain.PaymentStatus {
	if event == "transaction.successful" {
		return domain.PaymentStatusCompleted
	}
	if code == nil {
		return domain.PaymentStatusPending
	}
	switch *code {
	case 0:
		return domain.PaymentStatusCompleted
	case 2:
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}
