// Package store is the Postgres persistence layer. Every tenant-scoped query
// runs inside WithTenantTx, which pins the row-level security setting for the
// transaction and binds the organization id into each statement.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/support-hubs/internal/tenant"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries groups the SQL statements of the service.
type Queries struct {
	db DBTX
}

// New wraps db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store owns the connection pool.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects a pool and verifies the connection.
func Open(ctx context.Context, dsn string, tracer pgx.QueryTracer) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if tracer != nil {
		cfg.ConnConfig.Tracer = tracer
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.Pool == nil {
		return ErrUnavailable
	}
	return s.Pool.Ping(ctx)
}

// Queries returns non-transactional queries on the pool. Only organization
// and plan lookups, which are not row-level secured, should use it.
func (s *Store) Queries() *Queries {
	return New(s.Pool)
}

// WithTenantTx runs fn inside a transaction bound to scope. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTenantTx(ctx context.Context, scope tenant.Scope, fn func(q *Queries) error) error {
	if s == nil || s.Pool == nil {
		return ErrUnavailable
	}
	if scope.IsZero() {
		return tenant.ErrTenantMissing
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_organization_id', $1, true)`, scope.String()); err != nil {
		return fmt.Errorf("set tenant: %w", err)
	}
	if err := fn(New(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
