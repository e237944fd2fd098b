package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sitesync/porter/internal/models"
)

// ====================
// Taxonomy terms
// ====================

// GetTermBySlug retrieves a term by (taxonomy, slug)
func (r *Repository) GetTermBySlug(ctx context.Context, taxonomy, slug string) (*models.Term, error) {
	term := &models.Term{}
	query := `
		SELECT id, taxonomy, name, slug
		FROM terms
		WHERE taxonomy = $1 AND slug = $2
	`

	err := sqlx.GetContext(ctx, r.ext, term, query, taxonomy, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get term: %w", err)
	}

	return term, nil
}

// CreateTerm creates a new taxonomy term. A concurrent insert of the same
// (taxonomy, slug) must not abort the enclosing transaction, so the insert
// uses ON CONFLICT DO NOTHING and falls back to the winner's row instead of
// surfacing a unique violation.
func (r *Repository) CreateTerm(ctx context.Context, taxonomy, name, slug string) (*models.Term, error) {
	term := &models.Term{Taxonomy: taxonomy, Name: name, Slug: slug}
	query := `
		INSERT INTO terms (taxonomy, name, slug)
		VALUES ($1, $2, $3)
		ON CONFLICT (taxonomy, slug) DO NOTHING
		RETURNING id
	`

	err := sqlx.GetContext(ctx, r.ext, &term.ID, query, taxonomy, name, slug)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the insert race; use the existing row
		return r.GetTermBySlug(ctx, taxonomy, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create term: %w", err)
	}

	return term, nil
}

// AssociateTerms links the given term IDs with a record
func (r *Repository) AssociateTerms(ctx context.Context, recordID int64, termIDs []int64) error {
	if len(termIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO record_terms (record_id, term_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`

	if _, err := r.ext.ExecContext(ctx, query, recordID, pq.Array(termIDs)); err != nil {
		return fmt.Errorf("failed to associate terms: %w", err)
	}
	return nil
}

// GetTermsForRecord returns the record's terms grouped by taxonomy
func (r *Repository) GetTermsForRecord(ctx context.Context, recordID int64) (map[string][]models.Term, error) {
	rows := []models.Term{}
	query := `
		SELECT t.id, t.taxonomy, t.name, t.slug
		FROM terms t
		JOIN record_terms rt ON rt.term_id = t.id
		WHERE rt.record_id = $1
		ORDER BY t.taxonomy ASC, t.name ASC
	`

	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to get record terms: %w", err)
	}

	grouped := make(map[string][]models.Term)
	for _, term := range rows {
		grouped[term.Taxonomy] = append(grouped[term.Taxonomy], term)
	}
	return grouped, nil
}
