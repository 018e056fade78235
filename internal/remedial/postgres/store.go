// Package postgres is the PostgreSQL [remedial.Store].
//
// Every method resolves its querier from the context: inside
// [Store.RunInTx] that is the open transaction, otherwise the pool. Schema
// changes are goose migrations embedded in the binary, applied with
// [Migrate].
package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/basa-ph/basa/internal/remedial"
)

// DB is the part of *pgxpool.Pool the store needs. pgxmock pools satisfy it
// too.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	querier
}

// querier is implemented by both DB and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements [remedial.Store] on PostgreSQL. It is safe for concurrent
// use.
type Store struct {
	db DB
	sb sq.StatementBuilderType
}

var _ remedial.Store = (*Store)(nil)

// New returns a Store backed by db.
func New(db DB) *Store {
	return &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Ping checks that the database answers. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}
