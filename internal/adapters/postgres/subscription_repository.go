package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
	"github.com/predictkings/billing-service/pkg/timeutil"
)

// SubscriptionRepository implements ports.SubscriptionRepository on
// PostgreSQL. Historical rows are retained, so "at most one active
// unexpired row per user" is enforced by the state machine holding the
// per-user advisory lock taken in LockUser, not by a table constraint.
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const lockUserSQL = `SELECT pg_advisory_xact_lock(hashtext($1::text))`

// LockUser takes a transaction-scoped advisory lock on the user. Unlike
// SELECT ... FOR UPDATE this holds even when the user has no subscription
// row yet, so two concurrent first payments serialize instead of both
// creating. Released automatically at commit or rollback.
func (r *SubscriptionRepository) LockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if _, err := tx.Exec(ctx, lockUserSQL, userID); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageFailure, "lock user", err)
	}
	return nil
}

const selectActiveForUpdateSQL = `
SELECT id, user_id, plan, amount_paid, currency, start_date, expiry_date,
       is_active, gateway, transaction_ref, payment_failures, created_at, updated_at
FROM subscriptions
WHERE user_id = $1 AND is_active = true AND expiry_date > $2
ORDER BY expiry_date DESC
LIMIT 1
FOR UPDATE
`

// GetActiveForUpdate returns the user's active, unexpired subscription
// locked for the duration of tx, or nil if the user has none.
func (r *SubscriptionRepository) GetActiveForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (*domain.Subscription, error) {
	row := tx.QueryRow(ctx, selectActiveForUpdateSQL, userID, now)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "get active subscription", err)
	}
	return sub, nil
}

const insertSubscriptionSQL = `
INSERT INTO subscriptions (
    id, user_id, plan, amount_paid, currency, start_date, expiry_date,
    is_active, gateway, transaction_ref, payment_failures, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

// Create inserts a new subscription row.
func (r *SubscriptionRepository) Create(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error {
	amount, err := decimalToNumeric(sub.AmountPaid)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "encode amount", err)
	}

	_, err = tx.Exec(ctx, insertSubscriptionSQL,
		sub.ID, sub.UserID, string(sub.Plan), amount, sub.Currency,
		sub.StartDate, sub.ExpiryDate, sub.IsActive, string(sub.Gateway),
		sub.TransactionRef, sub.PaymentFailures, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeStorageFailure, "create subscription", err)
	}
	return nil
}

const updateSubscriptionSQL = `
UPDATE subscriptions SET
    plan            = $2,
    amount_paid     = $3,
    currency        = $4,
    expiry_date     = $5,
    is_active       = $6,
    gateway         = $7,
    transaction_ref = $8,
    updated_at      = $9
WHERE id = $1
`

// Update writes back a renewed subscription.
func (r *SubscriptionRepository) Update(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error {
	amount, err := decimalToNumeric(sub.AmountPaid)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "encode amount", err)
	}

	tag, err := tx.Exec(ctx, updateSubscriptionSQL,
		sub.ID, string(sub.Plan), amount, sub.Currency, sub.ExpiryDate,
		sub.IsActive, string(sub.Gateway), sub.TransactionRef, sub.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeStorageFailure, "update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

const incrementFailuresSQL = `
UPDATE subscriptions SET
    payment_failures = payment_failures + 1,
    updated_at       = now()
WHERE id = (
    SELECT id FROM subscriptions
    WHERE user_id = $1
    ORDER BY created_at DESC
    LIMIT 1
)
`

// IncrementPaymentFailures bumps the failure counter on the user's most
// recent subscription.
func (r *SubscriptionRepository) IncrementPaymentFailures(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, incrementFailuresSQL, userID)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeStorageFailure, "increment payment failures", err)
	}
	return tag.RowsAffected() > 0, nil
}

const deactivateExpiredSQL = `
UPDATE subscriptions SET
    is_active  = false,
    updated_at = now()
WHERE is_active = true AND expiry_date <= $1
`

// DeactivateExpired flips is_active off on rows whose expiry has passed.
func (r *SubscriptionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.GetDB().Exec(ctx, deactivateExpiredSQL, now)
	if err != nil {
		return 0, domain.WrapError(domain.ErrorCodeStorageFailure, "deactivate expired subscriptions", err)
	}
	return tag.RowsAffected(), nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub     domain.Subscription
		plan    string
		gateway string
		amount  pgtype.Numeric
	)

	err := row.Scan(
		&sub.ID, &sub.UserID, &plan, &amount, &sub.Currency,
		&sub.StartDate, &sub.ExpiryDate, &sub.IsActive, &gateway,
		&sub.TransactionRef, &sub.PaymentFailures, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	dec, err := numericToDecimal(amount)
	if err != nil {
		return nil, err
	}

	sub.Plan = domain.PlanType(plan)
	sub.Gateway = domain.Gateway(gateway)
	sub.AmountPaid = dec
	sub.StartDate = timeutil.ToUTC(sub.StartDate)
	sub.ExpiryDate = timeutil.ToUTC(sub.ExpiryDate)
	sub.CreatedAt = timeutil.ToUTC(sub.CreatedAt)
	sub.UpdatedAt = timeutil.ToUTC(sub.UpdatedAt)
	return &sub, nil
}
