// Package database implements the content store over PostgreSQL: records,
// record meta, taxonomy terms, attachments and custom fields.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repository provides database operations for all entities. A Repository is
// either connection-scoped (created by NewRepository) or transaction-scoped
// (passed to a WithinTx closure); both expose the same operations.
type Repository struct {
	db  *sqlx.DB        // nil when transaction-scoped
	ext sqlx.ExtContext // the connection pool or the open transaction
}

// NewRepository creates a new repository instance
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, ext: db}
}

// Ping verifies the underlying connection.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return errors.New("ping requires a connection-scoped repository")
	}
	return r.db.PingContext(ctx)
}

// WithinTx runs fn against a transaction-scoped repository. The transaction
// commits when fn returns nil and rolls back when fn returns an error or
// panics, so no exit path leaves it open.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return errors.New("nested transactions are not supported")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Repository{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
