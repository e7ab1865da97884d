package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner starts transactions. *pgxpool.Pool implements it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxFunc runs inside a transaction owned by WithTx.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// WithTx runs fn inside a single transaction and commits when fn returns nil.
// On every other exit path, including a panic or a cancelled ctx, the
// transaction is rolled back before WithTx returns.
func WithTx(ctx context.Context, b TxBeginner, opts pgx.TxOptions, fn TxFunc) (err error) {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// The request context may already be cancelled; rollback must still run.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
