package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConcurrentUpdate signals row-lock contention or a lost compare-and-swap.
// Callers may retry the whole unit of work with backoff.
var ErrConcurrentUpdate = errors.New("concurrent update")

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. When constraint is non-empty, only that constraint matches.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsSerializationFailure reports whether err is a transient concurrency
// failure (serialization failure, deadlock, or lock timeout) that is safe to
// retry after the transaction rolls back.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
