package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
	"github.com/predictkings/billing-service/pkg/timeutil"
)

// TransactionRepository implements ports.TransactionLedger on PostgreSQL.
// The unique index on (gateway, external_transaction_id) plus the single
// INSERT ... ON CONFLICT statement make the upsert the atomic idempotency
// anchor: among any number of concurrent deliveries of the same external
// id, exactly one observes isNew == true. Methods take the query surface
// so the upsert commits or rolls back with the subscription mutation it
// triggers; an activation failure releases the isNew token for the retry.
type TransactionRepository struct{}

// NewTransactionRepository creates a new transaction ledger repository
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{}
}

// The DO UPDATE branch fires only when the incoming status is forward
// progress for the stored row; otherwise no row comes back and the call is
// a no-op. A completed row never regresses; failed may still be overridden
// by a late completed because gateways are authoritative on final success.
const upsertTransactionSQL = `
INSERT INTO transactions (
    id, user_id, email, gateway, external_transaction_id,
    amount, currency, plan, status, raw_payload, created_at, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (gateway, external_transaction_id) DO UPDATE SET
    status       = EXCLUDED.status,
    plan         = CASE WHEN transactions.plan = '' THEN EXCLUDED.plan ELSE transactions.plan END,
    user_id      = COALESCE(transactions.user_id, EXCLUDED.user_id),
    completed_at = COALESCE(transactions.completed_at, EXCLUDED.completed_at)
WHERE (transactions.status = 'pending' AND EXCLUDED.status IN ('completed', 'failed'))
   OR (transactions.status = 'failed'  AND EXCLUDED.status = 'completed')
RETURNING id, user_id, email, gateway, external_transaction_id,
          amount, currency, plan, status, raw_payload, created_at, completed_at
`

const selectTransactionSQL = `
SELECT id, user_id, email, gateway, external_transaction_id,
       amount, currency, plan, status, raw_payload, created_at, completed_at
FROM transactions
WHERE gateway = $1 AND external_transaction_id = $2
`

// Upsert records the event idempotently, returning the ledger row and
// whether this call changed durable state.
func (r *TransactionRepository) Upsert(ctx context.Context, db ports.DBTX, event *domain.NormalizedPaymentEvent, userID *uuid.UUID) (*domain.StandardizedTransaction, bool, error) {
	amount, err := decimalToNumeric(event.Amount)
	if err != nil {
		return nil, false, domain.WrapError(domain.ErrorCodeInternalError, "encode amount", err)
	}

	var completedAt *time.Time
	if event.Status == domain.PaymentStatusCompleted {
		t := event.ReceivedAt
		completedAt = &t
	}

	row := db.QueryRow(ctx, upsertTransactionSQL,
		uuid.New(), userID, event.CustomerEmail, string(event.Gateway), event.ExternalID,
		amount, event.Currency, string(event.Plan), string(event.Status),
		event.RawPayload, event.ReceivedAt, completedAt,
	)

	txn, err := scanTransaction(row)
	if err == nil {
		return txn, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.WrapError(domain.ErrorCodeStorageFailure, "upsert transaction", err)
	}

	// Conflict without forward progress: the row already holds this state
	// or a more final one. Return it so the caller can tell duplicate from
	// stale-transition anomaly.
	existing, err := r.GetByGatewayRef(ctx, db, event.Gateway, event.ExternalID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByGatewayRef looks up a ledger row by its (gateway, external id) key.
func (r *TransactionRepository) GetByGatewayRef(ctx context.Context, db ports.DBTX, gateway domain.Gateway, externalID string) (*domain.StandardizedTransaction, error) {
	row := db.QueryRow(ctx, selectTransactionSQL, string(gateway), externalID)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "transaction vanished after conflict", err)
		}
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "get transaction", err)
	}
	return txn, nil
}

func scanTransaction(row pgx.Row) (*domain.StandardizedTransaction, error) {
	var (
		txn         domain.StandardizedTransaction
		gateway     string
		plan        string
		status      string
		amount      pgtype.Numeric
		completedAt *time.Time
	)

	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.Email, &gateway, &txn.ExternalID,
		&amount, &txn.Currency, &plan, &status,
		&txn.RawPayload, &txn.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	dec, err := numericToDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}

	txn.Gateway = domain.Gateway(gateway)
	txn.Plan = domain.PlanType(plan)
	txn.Status = domain.PaymentStatus(status)
	txn.Amount = dec
	txn.CreatedAt = timeutil.ToUTC(txn.CreatedAt)
	if completedAt != nil {
		t := timeutil.ToUTC(*completedAt)
		completedAt = &t
	}
	txn.CompletedAt = completedAt
	return &txn, nil
}
