// Package gateways maps provider-specific webhook deliveries into the
// canonical payment event. Every adapter verifies authenticity over the
// raw, unparsed body before trusting any field: re-serialization can change
// byte layout and invalidate the signature, so parsing always comes second.
package gateways

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"net/http"
	"strings"

	"github.com/predictkings/billing-service/internal/domain"
)

// Adapter verifies and normalizes one provider's webhook deliveries.
type Adapter interface {
	Gateway() domain.Gateway
	Normalize(body []byte, headers http.Header) (*domain.NormalizedPaymentEvent, error)
}

// Registry dispatches inbound deliveries to the adapter for their gateway
// identifier.
type Registry struct {
	adapters map[domain.Gateway]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[domain.Gateway]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Gateway()] = a
	}
	return &Registry{adapters: m}
}

// Lookup returns the adapter registered for the gateway.
func (r *Registry) Lookup(g domain.Gateway) (Adapter, bool) {
	a, ok := r.adapters[g]
	return a, ok
}

// Gateways lists the registered gateway identifiers.
func (r *Registry) Gateways() []domain.Gateway {
	out := make([]domain.Gateway, 0, len(r.adapters))
	for g := range r.adapters {
		out = append(out, g)
	}
	return out
}

// verifyHMAC checks a hex-encoded HMAC signature computed over the raw
// request body.
func verifyHMAC(newHash func() hash.Hash, secret string, body []byte, signature string) error {
	if signature == "" {
		return domain.ErrSignatureMissing
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// SignSHA256 computes the hex HMAC-SHA256 of body. Exposed for tests and
// for local tooling that replays captured webhooks.
func SignSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignSHA512 computes the hex HMAC-SHA512 of body.
func SignSHA512(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// resolvePlan picks the plan for an event: explicit metadata wins, then the
// configured amount table. A completed payment that maps to no plan cannot
// be credited and is rejected; failed and pending events may pass through
// without one.
func resolvePlan(status domain.PaymentStatus, metaPlan string, event *domain.NormalizedPaymentEvent, table *PlanTable) error {
	if p := parsePlan(metaPlan); p.Valid() {
		event.Plan = p
		return nil
	}
	if table != nil {
		if p, ok := table.Resolve(event.Amount); ok {
			event.Plan = p
			return nil
		}
	}
	if status == domain.PaymentStatusCompleted {
		return domain.NewDomainError(domain.ErrorCodePlanUnknown, "no plan matches payment").
			WithDetail("amount", event.Amount.String()).
			WithDetail("gateway", string(event.Gateway))
	}
	return nil
}

func parsePlan(s string) domain.PlanType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "1day":
		return domain.PlanDaily
	case "weekly", "week", "7days":
		return domain.PlanWeekly
	case "monthly", "month", "30days", "31days":
		return domain.PlanMonthly
	}
	return ""
}
