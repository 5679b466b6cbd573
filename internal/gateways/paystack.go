package gateways

import (
	"crypto/sha512"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/pkg/timeutil"
)

// SignatureHeaderPaystack carries the HMAC-SHA512 of the raw body.
const SignatureHeaderPaystack = "X-Paystack-Signature"

// Paystack adapts Paystack charge webhooks. Amounts arrive in kobo and are
// stored in naira.
type Paystack struct {
	secret string
	plans  *PlanTable
}

// NewPaystack creates a Paystack adapter with the webhook signing secret.
func NewPaystack(secret string, plans *PlanTable) *Paystack {
	return &Paystack{secret: secret, plans: plans}
}

func (p *Paystack) Gateway() domain.Gateway {
	return domain.GatewayPaystack
}

type paystackPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string      `json:"reference"`
		Amount    json.Number `json:"amount"`
		Currency  string      `json:"currency"`
		Status    string      `json:"status"`
		Customer  struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"customer"`
		Metadata struct {
			Plan string `json:"plan"`
		} `json:"metadata"`
	} `json:"data"`
}

// Normalize verifies the x-paystack-signature header and maps the payload
// into the canonical event.
func (p *Paystack) Normalize(body []byte, headers http.Header) (*domain.NormalizedPaymentEvent, error) {
	if err := verifyHMAC(sha512.New, p.secret, body, headers.Get(SignatureHeaderPaystack)); err != nil {
		return nil, err
	}

	var payload paystackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid paystack payload", err)
	}

	kobo, err := decimal.NewFromString(payload.Data.Amount.String())
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid paystack amount", err)
	}

	status := paystackStatus(payload.Event, payload.Data.Status)
	event := &domain.NormalizedPaymentEvent{
		Gateway:       domain.GatewayPaystack,
		ExternalID:    payload.Data.Reference,
		CustomerEmail: payload.Data.Customer.Email,
		CustomerPhone: payload.Data.Customer.Phone,
		Amount:        kobo.Div(decimal.NewFromInt(100)),
		Currency:      payload.Data.Currency,
		Status:        status,
		RawPayload:    body,
		ReceivedAt:    timeutil.Now(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := resolvePlan(status, payload.Data.Metadata.Plan, event, p.plans); err != nil {
		return nil, err
	}
	return event, nil
}

func paystackStatus(event, status string) domain.PaymentStatus {
	if event == "charge.success" {
		return domain.PaymentStatusCompleted
	}
	switch status {
	case "success":
		return domain.PaymentStatusCompleted
	case "failed", "reversed":
		return domain.PaymentStatusFailed
	default:
		// abandoned, ongoing, queued and anything unmapped stay pending
		return domain.PaymentStatusPending
	}
}
