package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// txKey is scoped to a pool so a transaction on one store is never picked up
// by a repository of another store sharing the same context.
type txKey struct {
	db *sqlx.DB
}

// WithTx stores a transaction for db in the context.
func WithTx(ctx context.Context, db *sqlx.DB, tx *sqlx.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{db: db}, tx)
}

// TxFrom extracts the transaction for db from the context if present.
func TxFrom(ctx context.Context, db *sqlx.DB) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{db: db}).(*sqlx.Tx)
	return tx, ok
}

// Ext returns the transaction bound to ctx for db, or db itself.
func Ext(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := TxFrom(ctx, db); ok {
		return tx
	}
	return db
}

// RunInTx executes fn inside a transaction on db. The transaction is rolled
// back when fn fails, panics, or ctx is done before commit; it is committed
// otherwise. A call made while a transaction for db is already on ctx joins it.
func RunInTx(ctx context.Context, db *sqlx.DB, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFrom(ctx, db); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
			}
		}
	}()

	if err = fn(WithTx(ctx, db, tx)); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
