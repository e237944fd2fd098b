// Package exporter assembles portable content snapshots from the local store.
package exporter

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sitesync/porter/internal/auth"
	"github.com/sitesync/porter/internal/blocks"
	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/media"
	"github.com/sitesync/porter/internal/metrics"
	"github.com/sitesync/porter/internal/models"
)

// excludedMetaKeys are editor bookkeeping entries that must never travel to
// another installation.
var excludedMetaKeys = map[string]struct{}{
	"_edit_lock":            {},
	"_edit_last":            {},
	"_wp_trash_meta_status": {},
	"_wp_trash_meta_time":   {},
	"_wp_desired_post_slug": {},
	"_wp_old_slug":          {},
	"_wpas_done_all":        {},
	"_encloseme":            {},
	"_wp_page_template":     {},
	"_thumbnail_id":         {}, // carried as featured_image, not meta
}

// Store is the read surface the exporter needs.
type Store interface {
	GetRecordByID(ctx context.Context, id int64) (*models.Record, error)
	GetMetaForRecord(ctx context.Context, recordID int64) (map[string]any, error)
	GetTermsForRecord(ctx context.Context, recordID int64) (map[string][]models.Term, error)
	GetFeaturedImageID(ctx context.Context, recordID int64) (int64, error)
	GetAttachmentByID(ctx context.Context, id int64) (*models.Attachment, error)
}

// CustomFieldStore reads third-party field values. Optional; installations
// without one export no acf_fields.
type CustomFieldStore interface {
	GetCustomFields(ctx context.Context, recordID int64) (map[string]any, error)
}

// Exporter builds snapshots and batch envelopes. Exported documents are
// self-contained: relations are resolved to portable descriptors and media
// references are precomputed so the importing side never queries this site's
// store.
type Exporter struct {
	store        Store
	customFields CustomFieldStore
	extractor    *media.Extractor
	allowedTypes map[string]struct{}
	tracker      metrics.ActivityTracker
	collectors   *metrics.Collectors
	logger       logger.Logger
}

// New creates an exporter. customFields, tracker and collectors may be nil.
func New(
	store Store,
	customFields CustomFieldStore,
	extractor *media.Extractor,
	allowedTypes []string,
	tracker metrics.ActivityTracker,
	collectors *metrics.Collectors,
	log logger.Logger,
) *Exporter {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}
	return &Exporter{
		store:        store,
		customFields: customFields,
		extractor:    extractor,
		allowedTypes: allowed,
		tracker:      tracker,
		collectors:   collectors,
		logger:       log,
	}
}

// ExportOne builds the snapshot for a single record.
func (e *Exporter) ExportOne(ctx context.Context, principal auth.Principal, recordID int64) (*models.ContentSnapshot, error) {
	snap, err := e.exportOne(ctx, principal, recordID)
	e.collectors.ObserveExport(contentTypeOf(snap), err)
	if err == nil && e.tracker != nil {
		if trackErr := e.tracker.IncrementExported(ctx, snap.ContentType); trackErr != nil {
			e.logger.Warn("Failed to record export metric", logger.Error(trackErr))
		}
	}
	return snap, err
}

func (e *Exporter) exportOne(ctx context.Context, principal auth.Principal, recordID int64) (*models.ContentSnapshot, error) {
	if !principal.Can(auth.CapEditPosts) {
		return nil, models.NewError(models.CodePermissionDenied, "not allowed to export content")
	}

	record, err := e.store.GetRecordByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewError(models.CodeNotFound, "record %d not found", recordID)
		}
		return nil, err
	}
	if _, ok := e.allowedTypes[record.ContentType]; !ok {
		return nil, models.NewError(models.CodeInvalidContentType,
			"content type %q is not transferable", record.ContentType)
	}

	snap := &models.ContentSnapshot{
		Title:         record.Title,
		Body:          record.Body,
		ContentType:   record.ContentType,
		Status:        record.Status,
		Excerpt:       record.Excerpt,
		Date:          record.CreatedAt.Format(models.DateFormat),
		CommentStatus: record.CommentStatus,
		PingStatus:    record.PingStatus,
	}

	if err := e.attachMeta(ctx, recordID, snap); err != nil {
		return nil, err
	}
	if err := e.attachTerms(ctx, recordID, snap); err != nil {
		return nil, err
	}
	if err := e.attachFeaturedImage(ctx, recordID, snap); err != nil {
		return nil, err
	}
	if err := e.attachCustomFields(ctx, recordID, snap); err != nil {
		return nil, err
	}

	if blocks.HasBlocks(snap.Body) {
		snap.Blocks = blocks.Parse(snap.Body)
	}

	if refs := e.extractor.ExtractReferences(ctx, snap); len(refs) > 0 {
		snap.MediaRefs = refs
	}

	e.logger.Info("Exported record",
		logger.Int64("record_id", recordID),
		logger.String("content_type", snap.ContentType),
		logger.Int("media_references", len(snap.MediaRefs)),
	)
	return snap, nil
}

// ExportBatch exports each ID independently and assembles the envelope.
// Records that cannot be exported become envelope errors; the batch fails
// only when nothing could be exported.
func (e *Exporter) ExportBatch(ctx context.Context, principal auth.Principal, recordIDs []int64) (*models.BatchEnvelope, error) {
	if len(recordIDs) == 0 {
		return nil, models.NewError(models.CodeInvalidRequest, "no records selected")
	}

	batch := &models.BatchEnvelope{
		BatchID: uuid.NewString(),
		Items:   make([]models.ContentSnapshot, 0, len(recordIDs)),
	}
	for _, id := range recordIDs {
		snap, err := e.ExportOne(ctx, principal, id)
		if err != nil {
			// Permission applies to the caller, not the record; fail fast
			if models.ErrorCode(err) == models.CodePermissionDenied {
				return nil, err
			}
			batch.Errors = append(batch.Errors, models.ExportItemError{
				RecordID: id,
				Message:  err.Error(),
			})
			continue
		}
		batch.Items = append(batch.Items, *snap)
	}

	if len(batch.Items) == 0 {
		return nil, models.NewError(models.CodeEmptyBatch, "no records could be exported")
	}

	e.collectors.ObserveBatch(len(batch.Items))
	e.logger.Info("Exported batch",
		logger.String("batch_id", batch.BatchID),
		logger.Int("exported", len(batch.Items)),
		logger.Int("failed", len(batch.Errors)),
	)
	return batch, nil
}

func (e *Exporter) attachMeta(ctx context.Context, recordID int64, snap *models.ContentSnapshot) error {
	meta, err := e.store.GetMetaForRecord(ctx, recordID)
	if err != nil {
		return err
	}
	for key := range meta {
		if _, excluded := excludedMetaKeys[key]; excluded {
			delete(meta, key)
		}
	}
	if len(meta) > 0 {
		snap.Meta = meta
	}
	return nil
}

func (e *Exporter) attachTerms(ctx context.Context, recordID int64, snap *models.ContentSnapshot) error {
	grouped, err := e.store.GetTermsForRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if len(grouped) == 0 {
		return nil
	}

	snap.Taxonomies = make(map[string][]models.TermRef, len(grouped))
	for taxonomy, terms := range grouped {
		refs := make([]models.TermRef, len(terms))
		for i, term := range terms {
			refs[i] = models.TermRef{Name: term.Name, Slug: term.Slug}
		}
		snap.Taxonomies[taxonomy] = refs
	}
	return nil
}

func (e *Exporter) attachFeaturedImage(ctx context.Context, recordID int64, snap *models.ContentSnapshot) error {
	attachmentID, err := e.store.GetFeaturedImageID(ctx, recordID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	att, err := e.store.GetAttachmentByID(ctx, attachmentID)
	if errors.Is(err, models.ErrNotFound) {
		// Dangling thumbnail reference; export without it
		e.logger.Warn("Featured image attachment missing",
			logger.Int64("record_id", recordID),
			logger.Int64("attachment_id", attachmentID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	snap.FeaturedImage = &models.FeaturedImage{
		ID:    att.ID,
		Title: att.Title,
		URL:   att.URL,
	}
	return nil
}

func (e *Exporter) attachCustomFields(ctx context.Context, recordID int64, snap *models.ContentSnapshot) error {
	if e.customFields == nil {
		return nil
	}
	fields, err := e.customFields.GetCustomFields(ctx, recordID)
	if errors.Is(err, models.ErrNoCustomFields) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		snap.CustomFields = fields
	}
	return nil
}

func contentTypeOf(snap *models.ContentSnapshot) string {
	if snap == nil {
		return "unknown"
	}
	return snap.ContentType
}
