package postcommit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InTx runs fn inside one database transaction and dispatches the tasks fn
// queued only after a successful commit. On any error the transaction rolls
// back and the queued tasks are dropped.
func InTx(ctx context.Context, db Beginner, runner *Runner, fn func(ctx context.Context, tx pgx.Tx, q *Queue) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postcommit: begin tx: %w", err)
	}

	queue := NewQueue()
	if err := fn(ctx, tx, queue); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("postcommit: rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postcommit: commit tx: %w", err)
	}

	if runner != nil {
		runner.Dispatch(queue.drain())
	}
	return nil
}
