package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ====================
// Record meta
// ====================

type metaRow struct {
	Key   string `db:"meta_key"`
	Value []byte `db:"meta_value"`
}

// GetMetaForRecord returns all meta entries of a record. Values are stored as
// JSONB so arbitrary scalars and arrays survive the round trip.
func (r *Repository) GetMetaForRecord(ctx context.Context, recordID int64) (map[string]any, error) {
	rows := []metaRow{}
	query := `
		SELECT meta_key, meta_value
		FROM record_meta
		WHERE record_id = $1
		ORDER BY meta_key ASC
	`

	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to get record meta: %w", err)
	}

	meta := make(map[string]any, len(rows))
	for _, row := range rows {
		var value any
		if err := json.Unmarshal(row.Value, &value); err != nil {
			return nil, fmt.Errorf("failed to decode meta value %q: %w", row.Key, err)
		}
		meta[row.Key] = value
	}
	return meta, nil
}

// SetMeta upserts one meta entry for a record
func (r *Repository) SetMeta(ctx context.Context, recordID int64, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode meta value %q: %w", key, err)
	}

	query := `
		INSERT INTO record_meta (record_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value
	`

	if _, err := r.ext.ExecContext(ctx, query, recordID, key, encoded); err != nil {
		return fmt.Errorf("failed to set meta %q: %w", key, err)
	}
	return nil
}
