package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist in the tenant scope.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable indicates the pool is not configured.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrUniqueViolation wraps Postgres unique constraint failures.
	ErrUniqueViolation = errors.New("store: unique violation")
)

// UniqueViolationError names the constraint that rejected a write.
type UniqueViolationError struct {
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s", e.Constraint)
}

// Is lets errors.Is match ErrUniqueViolation.
func (e *UniqueViolationError) Is(target error) bool { return target == ErrUniqueViolation }

func (e *UniqueViolationError) Unwrap() error { return e.Err }

// ConstraintOf returns the violated constraint name, if err is a unique violation.
func ConstraintOf(err error) (string, bool) {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv.Constraint, true
	}
	return "", false
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &UniqueViolationError{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}
