package ports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBPort defines the interface for database operations
type DBPort interface {
	// GetDB returns the underlying connection pool
	GetDB() *pgxpool.Pool

	// WithTransaction executes a function within a database transaction.
	// The transaction is rolled back if the function returns an error.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// DBTX is the common query surface shared by pools and transactions.
// Repositories take it so callers decide the transactional scope.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
