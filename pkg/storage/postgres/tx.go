package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

type txKey struct{}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxManager implements storage.UnitOfWork with a database transaction
// carried in the context
type TxManager struct {
	db *sql.DB
}

var _ storage.UnitOfWork = (*TxManager)(nil)

// NewTxManager creates a unit of work over db
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTx begins a read committed transaction, runs fn with it and commits
// when fn returns nil. An error or panic from fn rolls back; fn's error is
// returned unchanged. Nested calls join the outer transaction.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apierrors.Internal("failed to begin transaction", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			observability.FromContext(ctx).WithError(rbErr).Error("transaction rollback failed")
		}
	}()

	hookCtx, hooks := storage.WithAfterCommit(ctx)
	if err := fn(context.WithValue(hookCtx, txKey{}, tx)); err != nil {
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		return apierrors.Internal("failed to commit transaction", err)
	}
	hooks.Run(ctx)
	return nil
}

func txFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
