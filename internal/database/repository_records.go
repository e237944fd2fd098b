package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sitesync/porter/internal/models"
)

// ====================
// Records
// ====================

// GetRecordByID retrieves a content record by ID
func (r *Repository) GetRecordByID(ctx context.Context, id int64) (*models.Record, error) {
	record := &models.Record{}
	query := `
		SELECT id, title, body, content_type, status, excerpt,
		       comment_status, ping_status, created_at, updated_at
		FROM records
		WHERE id = $1
	`

	err := sqlx.GetContext(ctx, r.ext, record, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// CreateRecord inserts a new content record and returns its ID
func (r *Repository) CreateRecord(ctx context.Context, record *models.Record) (int64, error) {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := `
		INSERT INTO records (title, body, content_type, status, excerpt,
		                     comment_status, ping_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err := sqlx.GetContext(
		ctx, r.ext, &id, query,
		record.Title, record.Body, record.ContentType, record.Status, record.Excerpt,
		record.CommentStatus, record.PingStatus, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create record: %w", err)
	}

	record.ID = id
	return id, nil
}

// UpdateRecordBody replaces the body of an existing record
func (r *Repository) UpdateRecordBody(ctx context.Context, id int64, body string) error {
	query := `UPDATE records SET body = $2, updated_at = $3 WHERE id = $1`

	result, err := r.ext.ExecContext(ctx, query, id, body, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update record body: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}
