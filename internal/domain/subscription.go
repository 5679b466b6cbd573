package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanType is the duration class a paid subscription grants access for.
type PlanType string

const (
	PlanDaily   PlanType = "daily"
	PlanWeekly  PlanType = "weekly"
	PlanMonthly PlanType = "monthly"
)

// Days returns the access window a plan grants, in days.
func (p PlanType) Days() int {
	switch p {
	case PlanDaily:
		return 1
	case PlanWeekly:
		return 7
	case PlanMonthly:
		return 31
	}
	return 0
}

// Valid reports whether p is a known plan.
func (p PlanType) Valid() bool {
	return p.Days() > 0
}

// Subscription grants one user access to predictions until ExpiryDate.
// A user accumulates historical rows over time but holds at most one row
// that is simultaneously active and unexpired.
type Subscription struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Plan            PlanType
	AmountPaid      decimal.Decimal
	Currency        string
	StartDate       time.Time
	ExpiryDate      time.Time
	IsActive        bool
	Gateway         Gateway
	TransactionRef  string
	PaymentFailures int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsCurrentlyActive reports whether the subscription grants access at the
// given instant. The active flag alone is not enough: an expiry sweep may
// not have observed the row yet.
func (s *Subscription) IsCurrentlyActive(now time.Time) bool {
	return s.IsActive && s.ExpiryDate.After(now)
}

// Renew extends the subscription for another plan cycle paid through txn.
// The extension stacks on top of whichever is later, the current expiry or
// now, so an early renewal never wastes remaining time.
func (s *Subscription) Renew(txn *StandardizedTransaction, now time.Time) {
	base := s.ExpiryDate
	if now.After(base) {
		base = now
	}
	s.Plan = txn.Plan
	s.ExpiryDate = base.AddDate(0, 0, txn.Plan.Days())
	s.AmountPaid = txn.Amount
	s.Currency = txn.Currency
	s.Gateway = txn.Gateway
	s.TransactionRef = txn.ExternalID
	s.IsActive = true
	s.UpdatedAt = now
}

// NewSubscription builds the first active subscription for a user from a
// completed transaction.
func NewSubscription(userID uuid.UUID, txn *StandardizedTransaction, now time.Time) *Subscription {
	return &Subscription{
		ID:             uuid.New(),
		UserID:         userID,
		Plan:           txn.Plan,
		AmountPaid:     txn.Amount,
		Currency:       txn.Currency,
		StartDate:      now,
		ExpiryDate:     now.AddDate(0, 0, txn.Plan.Days()),
		IsActive:       true,
		Gateway:        txn.Gateway,
		TransactionRef: txn.ExternalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
