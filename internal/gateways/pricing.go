package gateways

import (
	"github.com/shopspring/decimal"

	"github.com/predictkings/billing-service/internal/domain"
)

// PlanPrice binds an exact paid amount to a plan.
type PlanPrice struct {
	Amount decimal.Decimal
	Plan   domain.PlanType
}

// PlanTable infers a plan from the exact paid amount for gateways whose
// payloads carry no plan metadata. The coupling between pricing and plan
// identity is deliberate legacy behavior; gateways that do send metadata
// never consult it.
type PlanTable struct {
	prices []PlanPrice
}

// NewPlanTable builds a table from price entries.
func NewPlanTable(prices []PlanPrice) *PlanTable {
	return &PlanTable{prices: prices}
}

// Resolve returns the plan whose price exactly equals amount.
func (t *PlanTable) Resolve(amount decimal.Decimal) (domain.PlanType, bool) {
	for _, p := range t.prices {
		if p.Amount.Equal(amount) {
			return p.Plan, true
		}
	}
	return "", false
}
