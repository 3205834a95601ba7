// Package postgres provides the PostgreSQL persistence adapters for servers,
// accounts, bindings, and transactions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okedigitalmedia/voucherd/internal/domain"
)

// PgxPool is the minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPool creates a pgx connection pool from the provided DSN and returns it.
// The pool is configured with sane defaults for this application.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// dbErr maps low-level pgx failures onto the domain error kinds. Unique
// violations surface as validation errors so callers lose races cleanly.
func dbErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ValidationError("duplicate_resource", "resource already exists").
			WithContext(map[string]any{"constraint": pgErr.ConstraintName}).
			WithCause(fmt.Errorf("op=%s: %w", op, err))
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return domain.E(domain.ErrDatabaseUnavailable, "db_unavailable", "database unavailable").
			WithCause(fmt.Errorf("op=%s: %w", op, err))
	}
	return domain.E(domain.ErrDatabaseInternal, "db_internal", "database operation failed").
		WithCause(fmt.Errorf("op=%s: %w", op, err))
}

// setBuilder accumulates SET clauses for partial updates.
type setBuilder struct {
	cols []string
	args []any
}

func (b *setBuilder) add(col string, v any) {
	b.args = append(b.args, v)
	b.cols = append(b.cols, fmt.Sprintf("%s=$%d", col, len(b.args)))
}

func (b *setBuilder) empty() bool { return len(b.cols) == 0 }

// clause renders the SET list and appends the WHERE argument, returning its
// placeholder index.
func (b *setBuilder) clause(arg any) (string, int, []any) {
	b.args = append(b.args, arg)
	return strings.Join(b.cols, ", "), len(b.args), b.args
}

// whereBuilder accumulates WHERE conditions for filtered listings.
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) add(cond string, v any) {
	b.args = append(b.args, v)
	b.conds = append(b.conds, fmt.Sprintf(cond, len(b.args)))
}

func (b *whereBuilder) addRaw(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// limitOffset renders pagination with a defaulted, capped page size.
func limitOffset(skip, limit int) string {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if skip < 0 {
		skip = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, skip)
}
