package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"jsonapi-backend/internal/store"
)

var (
	ErrCommitFailed   = errors.New("commit failed")
	ErrRollbackFailed = errors.New("rollback failed")
)

type txKey struct{}

// InTransaction runs fn in a transaction carried by the context it receives.
// Repositories used with that context join the transaction; nested calls
// reuse the outer one. The transaction commits when fn returns nil and
// rolls back otherwise.
func (r *Repository) InTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: %v (after: %w)", ErrRollbackFailed, rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return nil
}

func (r *Repository) querier(ctx context.Context) store.Querier {
	return querierFor(ctx, r.store)
}

// querierFor returns the transaction carried by ctx, or the pool.
func querierFor(ctx context.Context, s *store.Store) store.Querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.DB
}
