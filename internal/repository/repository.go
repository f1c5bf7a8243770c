// Package repository implements the engine's persistence interfaces on
// PostgreSQL via pgx. Every method maps backend errors to the shared model
// sentinels so callers never see driver types.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository wraps all SQL used by the API and the worker. It satisfies the
// engine's Store interface.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a repository over the pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgErrCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
