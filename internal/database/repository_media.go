package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sitesync/porter/internal/models"
)

// Meta key holding a record's featured-image attachment ID.
const featuredImageMetaKey = "_thumbnail_id"

// ====================
// Attachments
// ====================

// CreateAttachment registers a sideloaded file in the media library
func (r *Repository) CreateAttachment(ctx context.Context, att *models.Attachment) (int64, error) {
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO attachments (file_name, file_path, url, title, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := sqlx.GetContext(
		ctx, r.ext, &id, query,
		att.FileName, att.FilePath, att.URL, att.Title, att.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create attachment: %w", err)
	}

	att.ID = id
	return id, nil
}

// GetAttachmentByID retrieves an attachment by ID
func (r *Repository) GetAttachmentByID(ctx context.Context, id int64) (*models.Attachment, error) {
	att := &models.Attachment{}
	query := `
		SELECT id, file_name, file_path, url, title, created_at
		FROM attachments
		WHERE id = $1
	`

	err := sqlx.GetContext(ctx, r.ext, att, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return att, nil
}

// GetAttachmentURL returns the public URL of an attachment
func (r *Repository) GetAttachmentURL(ctx context.Context, id int64) (string, error) {
	att, err := r.GetAttachmentByID(ctx, id)
	if err != nil {
		return "", err
	}
	return att.URL, nil
}

// SetFeaturedImage records the attachment as the record's featured image
func (r *Repository) SetFeaturedImage(ctx context.Context, recordID, attachmentID int64) error {
	return r.SetMeta(ctx, recordID, featuredImageMetaKey, attachmentID)
}

// GetFeaturedImageID returns the record's featured-image attachment ID, or
// models.ErrNotFound when none is set.
func (r *Repository) GetFeaturedImageID(ctx context.Context, recordID int64) (int64, error) {
	var raw []byte
	query := `
		SELECT meta_value
		FROM record_meta
		WHERE record_id = $1 AND meta_key = $2
	`

	err := sqlx.GetContext(ctx, r.ext, &raw, query, recordID, featuredImageMetaKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, models.ErrNotFound
		}
		return 0, fmt.Errorf("failed to get featured image: %w", err)
	}

	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, fmt.Errorf("failed to decode featured image ID: %w", err)
	}
	return id, nil
}
