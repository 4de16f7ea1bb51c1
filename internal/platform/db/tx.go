package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey carries the active transaction for the current unit of work.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the transaction bound to ctx, or nil when the
// caller is not inside a unit of work.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// TxManager opens units of work for services with a shared timeout policy.
// A nil TxManager runs the function directly, outside any transaction, which
// lets service tests exercise business logic against mock repositories.
type TxManager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTxManager(pool *pgxpool.Pool, timeout time.Duration) *TxManager {
	return &TxManager{pool: pool, timeout: timeout}
}

// Run executes fn inside a single transaction, see RunInTx.
func (m *TxManager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if m == nil || m.pool == nil {
		return fn(ctx)
	}
	return RunInTx(ctx, m.pool, m.timeout, fn)
}

// RunInTx executes fn inside a single database transaction with a bounded
// wall-clock timeout. The transaction is injected into the context so that
// every repository call made by fn participates in the same unit of work.
// Any error (including timeout) rolls the whole transaction back; nothing is
// observable until commit. When ctx already carries a transaction, fn joins
// it instead of opening a nested one.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("unit of work timed out: %w", err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
