package gateways

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/pkg/timeutil"
)

// SignatureHeaderAlatPay carries the HMAC-SHA256 of the raw body.
const SignatureHeaderAlatPay = "X-Alatpay-Signature"

// AlatPay adapts ALATPay transaction webhooks. Payloads carry no plan
// metadata, so the plan is inferred from the paid amount.
type AlatPay struct {
	secret string
	plans  *PlanTable
}

// NewAlatPay creates an ALATPay adapter with the webhook signing secret.
func NewAlatPay(secret string, plans *PlanTable) *AlatPay {
	return &AlatPay{secret: secret, plans: plans}
}

func (a *AlatPay) Gateway() domain.Gateway {
	return domain.GatewayAlatPay
}

type alatPayPayload struct {
	Data struct {
		TransactionID string      `json:"transactionId"`
		Amount        json.Number `json:"amount"`
		Currency      string      `json:"currency"`
		Status        string      `json:"status"`
		Customer      struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"customer"`
	} `json:"data"`
}

func (a *AlatPay) Normalize(body []byte, headers http.Header) (*domain.NormalizedPaymentEvent, error) {
	if err := verifyHMAC(sha256.New, a.secret, body, headers.Get(SignatureHeaderAlatPay)); err != nil {
		return nil, err
	}

	var payload alatPayPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid alatpay payload", err)
	}

	amount, err := decimal.NewFromString(payload.Data.Amount.String())
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid alatpay amount", err)
	}

	status := alatPayStatus(payload.Data.Status)
	event := &domain.NormalizedPaymentEvent{
		Gateway:       domain.GatewayAlatPay,
		ExternalID:    payload.Data.TransactionID,
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
	if err := resolvePlan(status, "", event, a.plans); err != nil {
		return nil, err
	}
	return event, nil
}

func alatPayStatus(status string) domain.PaymentStatus {
	switch status {
	case "COMPLETED", "SUCCESSFUL":
		return domain.PaymentStatusCompleted
	case "FAILED", "DECLINED", "EXPIRED":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}
