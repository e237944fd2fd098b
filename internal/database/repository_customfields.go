package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ====================
// Custom fields
// ====================
//
// Custom fields mirror a third-party field system keyed by field identifier.
// They live in their own table so they can be toggled off without touching
// record meta.

type customFieldRow struct {
	Key   string `db:"field_key"`
	Value []byte `db:"field_value"`
}

// GetCustomFields returns all custom field values of a record
func (r *Repository) GetCustomFields(ctx context.Context, recordID int64) (map[string]any, error) {
	rows := []customFieldRow{}
	query := `
		SELECT field_key, field_value
		FROM custom_fields
		WHERE record_id = $1
		ORDER BY field_key ASC
	`

	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to get custom fields: %w", err)
	}

	fields := make(map[string]any, len(rows))
	for _, row := range rows {
		var value any
		if err := json.Unmarshal(row.Value, &value); err != nil {
			return nil, fmt.Errorf("failed to decode custom field %q: %w", row.Key, err)
		}
		fields[row.Key] = value
	}
	return fields, nil
}

// SetCustomField upserts one custom field value for a record
func (r *Repository) SetCustomField(ctx context.Context, recordID int64, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode custom field %q: %w", key, err)
	}

	query := `
		INSERT INTO custom_fields (record_id, field_key, field_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id, field_key) DO UPDATE SET field_value = EXCLUDED.field_value
	`

	if _, err := r.ext.ExecContext(ctx, query, recordID, key, encoded); err != nil {
		return fmt.Errorf("failed to set custom field %q: %w", key, err)
	}
	return nil
}
