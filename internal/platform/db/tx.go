package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const DBConnKey contextKey = "db_conn"

// Conn is the query surface shared by the pool and an open transaction.
type Conn interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ConnFromContext retrieves the transaction-scoped connection from context,
// or nil when the caller is not inside a transaction.
func ConnFromContext(ctx context.Context) Conn {
	conn, _ := ctx.Value(DBConnKey).(Conn)
	return conn
}

// Tx runs a function inside a single database transaction. Repositories
// called within fn pick the transaction up via ConnFromContext.
type Tx interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner returns a Tx backed by the connection pool.
func NewTxRunner(pool *pgxpool.Pool) Tx {
	return &txRunner{pool: pool}
}

func (t *txRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txCtx := context.WithValue(ctx, DBConnKey, Conn(tx))
	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
