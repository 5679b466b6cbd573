package gateways

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"encoding/xml"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/pkg/timeutil"
)

// SignatureHeaderCoralPay carries the HMAC-SHA256 of the raw body.
const SignatureHeaderCoralPay = "X-Coralpay-Signature"

// CoralPay adapts CoralPay transaction notifications. The gateway delivers
// the same notification as either JSON or XML depending on the integration
// channel, so the adapter sniffs the body. Payloads carry no plan metadata.
type CoralPay struct {
	secret string
	plans  *PlanTable
}

// NewCoralPay creates a CoralPay adapter with the webhook signing secret.
func NewCoralPay(secret string, plans *PlanTable) *CoralPay {
	return &CoralPay{secret: secret, plans: plans}
}

func (c *CoralPay) Gateway() domain.Gateway {
	return domain.GatewayCoralPay
}

type coralPayNotification struct {
	XMLName       xml.Name    `xml:"TransactionNotification" json:"-"`
	TransactionID string      `xml:"TransactionId" json:"transactionId"`
	Amount        json.Number `xml:"Amount" json:"amount"`
	Currency      string      `xml:"Currency" json:"currency"`
	ResponseCode  string      `xml:"ResponseCode" json:"responseCode"`
	CustomerEmail string      `xml:"CustomerEmail" json:"customerEmail"`
	CustomerPhone string      `xml:"CustomerPhone" json:"customerPhone"`
}

func (c *CoralPay) Normalize(body []byte, headers http.Header) (*domain.NormalizedPaymentEvent, error) {
	if err := verifyHMAC(sha256.New, c.secret, body, headers.Get(SignatureHeaderCoralPay)); err != nil {
		return nil, err
	}

	var payload coralPayNotification
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		if err := xml.Unmarshal(body, &payload); err != nil {
			return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid coralpay xml payload", err)
		}
	} else {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid coralpay json payload", err)
		}
	}

	amount, err := decimal.NewFromString(payload.Amount.String())
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodePayloadMalformed, "invalid coralpay amount", err)
	}

	status := coralPayStatus(payload.ResponseCode)
	event := &domain.NormalizedPaymentEvent{
		Gateway:       domain.GatewayCoralPay,
		ExternalID:    payload.TransactionID,
		CustomerEmail: payload.CustomerEmail,
		CustomerPhone: payload.CustomerPhone,
		Amount:        amount,
		Currency:      payload.Currency,
		Status:        status,
		RawPayload:    body,
		ReceivedAt:    timeutil.Now(),
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := resolvePlan(status, "", event, c.plans); err != nil {
		return nil, err
	}
	return event, nil
}

func coralPayStatus(code string) domain.PaymentStatus {
	switch code {
	case "00":
		return domain.PaymentStatusCompleted
	case "05", "51", "91":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}
