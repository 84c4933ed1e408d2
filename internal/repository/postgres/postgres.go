// Package postgres implements the repository interfaces on PostgreSQL via pgx.
//
// Statements are built with squirrel using $n placeholders. The schema is
// managed by goose migrations embedded in the binary and applied by New.
package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/closetmatrix/closet-matrix/internal/repository"
	"github.com/closetmatrix/closet-matrix/internal/repository/postgres/migrations"
)

const uniqueViolationCode = "23505"

var _ repository.Store = (*Store)(nil)

// pgExecutor is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it too.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store implements repository.Store backed by PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// New connects to databaseURL, applies pending migrations and returns a Store
// that owns the pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return NewStore(pool), nil
}

// NewStore wraps any executor. Only a *pgxpool.Pool is closed by Close.
func NewStore(exec pgExecutor) *Store {
	s := &Store{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		s.pool = pool
	}
	return s
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.exec.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// uniqueViolation reports whether err is a unique_violation and which users
// column it hit ("" when the constraint is not one of ours).
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return "", false
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return "email", true
	case "users_username_key":
		return "username", true
	}
	return "", true
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
