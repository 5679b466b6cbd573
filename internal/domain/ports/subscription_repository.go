package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/predictkings/billing-service/internal/domain"
)

// SubscriptionRepository persists subscriptions. Mutations happen only from
// the state machine, inside a transaction that holds the user's active row
// locked, so two concurrent renewals never read the same pre-renewal expiry.
type SubscriptionRepository interface {
	// LockUser serializes subscription mutations for one user for the
	// duration of tx. Row locks alone cannot do this: a user with no
	// active row yet has nothing to lock, and two first payments could
	// both create. Must be called before GetActiveForUpdate.
	LockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error

	// GetActiveForUpdate returns the user's active, unexpired subscription,
	// locked for the duration of tx, or nil if the user has none.
	GetActiveForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (*domain.Subscription, error)

	// Create inserts a new subscription row.
	Create(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error

	// Update writes back a renewed subscription.
	Update(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error

	// IncrementPaymentFailures bumps the failure counter on the user's
	// most recent subscription. Returns false if the user has no row to
	// count the failure against.
	IncrementPaymentFailures(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error)

	// DeactivateExpired flips is_active off on rows whose expiry has
	// passed. Used by the background sweep; returns rows affected.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserDirectory resolves webhook customer references to account ids.
// Account CRUD itself lives outside this service.
type UserDirectory interface {
	// GetIDByEmail returns nil when no account matches.
	GetIDByEmail(ctx context.Context, email string) (*uuid.UUID, error)
}
