package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/predictkings/billing-service/internal/domain"
)

// TransactionLedger is the durable, append-mostly store of every normalized
// payment event, keyed by (gateway, external transaction id). Callers pass
// the query surface so the upsert joins the same transaction as the
// subscription mutation it may trigger.
type TransactionLedger interface {
	// Upsert records the event idempotently. isNew is true only when this
	// call changed durable state: either a fresh row was inserted, or an
	// existing row's status advanced (pending to completed/failed, failed
	// to completed). Concurrent deliveries of the same external id observe
	// isNew == true exactly once, enforced at the storage layer.
	//
	// When isNew is false the returned transaction is the existing row as
	// the ledger already holds it.
	Upsert(ctx context.Context, db DBTX, event *domain.NormalizedPaymentEvent, userID *uuid.UUID) (txn *domain.StandardizedTransaction, isNew bool, err error)

	// GetByGatewayRef looks up a row by its ledger key.
	GetByGatewayRef(ctx context.Context, db DBTX, gateway domain.Gateway, externalID string) (*domain.StandardizedTransaction, error)
}
