package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
)

// UserRepository implements ports.UserDirectory on PostgreSQL. Account CRUD
// belongs to the user service; this side only resolves webhook customer
// references against the shared users table.
type UserRepository struct {
	db ports.DBPort
}

// NewUserRepository creates a new user directory repository
func NewUserRepository(db ports.DBPort) *UserRepository {
	return &UserRepository{db: db}
}

const selectUserIDByEmailSQL = `
SELECT id FROM users WHERE lower(email) = lower($1)
`

// GetIDByEmail returns nil when no account matches the email.
func (r *UserRepository) GetIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	if email == "" {
		return nil, nil
	}

	var id uuid.UUID
	err := r.db.GetDB().QueryRow(ctx, selectUserIDByEmailSQL, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "lookup user by email", err)
	}
	return &id, nil
}
