// Package importer writes decoded snapshots into the local content store.
// Every snapshot lands inside its own transaction: either the record with all
// its relations commits, or nothing does. Media downloads are the one
// deliberately soft spot; a file that cannot be fetched costs its reference,
// not the record.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sitesync/porter/internal/auth"
	"github.com/sitesync/porter/internal/blocks"
	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/media"
	"github.com/sitesync/porter/internal/metrics"
	"github.com/sitesync/porter/internal/models"
)

// featuredImageMetaKey arrives in snapshot meta from older exporters; it is
// always skipped because featured images travel as featured_image.
const featuredImageMetaKey = "_thumbnail_id"

// acfMetaPrefix marks custom-field key references that occasionally leak into
// exported meta. Custom fields travel as acf_fields, so these are skipped.
const acfMetaPrefix = "_acf_"

// Stores is the write surface one import transaction needs.
type Stores interface {
	CreateRecord(ctx context.Context, record *models.Record) (int64, error)
	UpdateRecordBody(ctx context.Context, id int64, body string) error
	SetMeta(ctx context.Context, recordID int64, key string, value any) error
	GetTermBySlug(ctx context.Context, taxonomy, slug string) (*models.Term, error)
	CreateTerm(ctx context.Context, taxonomy, name, slug string) (*models.Term, error)
	AssociateTerms(ctx context.Context, recordID int64, termIDs []int64) error
	CreateAttachment(ctx context.Context, attachment *models.Attachment) (int64, error)
	SetFeaturedImage(ctx context.Context, recordID, attachmentID int64) error
	SetCustomField(ctx context.Context, recordID int64, key string, value any) error
}

// TxRunner runs fn against transaction-scoped stores, committing when fn
// returns nil and rolling back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx Stores) error) error
}

// Importer imports snapshots and batches.
type Importer struct {
	tx           TxRunner
	rehydrator   *media.Rehydrator
	policy       *bluemonday.Policy
	allowedTypes map[string]struct{}
	siteURL      string
	tracker      metrics.ActivityTracker
	collectors   *metrics.Collectors
	logger       logger.Logger
}

// New creates an importer. tracker and collectors may be nil.
func New(
	tx TxRunner,
	rehydrator *media.Rehydrator,
	policy *bluemonday.Policy,
	allowedTypes []string,
	siteURL string,
	tracker metrics.ActivityTracker,
	collectors *metrics.Collectors,
	log logger.Logger,
) *Importer {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}
	return &Importer{
		tx:           tx,
		rehydrator:   rehydrator,
		policy:       policy,
		allowedTypes: allowed,
		siteURL:      strings.TrimRight(siteURL, "/"),
		tracker:      tracker,
		collectors:   collectors,
		logger:       log,
	}
}

// ItemPreview summarizes what importing one snapshot would create.
type ItemPreview struct {
	Title            string `json:"post_title"`
	ContentType      string `json:"post_type"`
	MediaCount       int    `json:"media_count"`
	TermCount        int    `json:"term_count"`
	HasFeaturedImage bool   `json:"has_featured_image"`
}

// Report is the result of validating a transfer document without importing.
type Report struct {
	Batch   bool          `json:"batch"`
	BatchID string        `json:"batch_id,omitempty"`
	Count   int           `json:"count"`
	Items   []ItemPreview `json:"items"`
}

// Validate checks every item of a decoded payload and reports what an import
// would do. Nothing is written.
func (i *Importer) Validate(payload *models.Payload) (*Report, error) {
	items := payload.Items()
	report := &Report{
		Batch: payload.IsBatch(),
		Count: len(items),
		Items: make([]ItemPreview, 0, len(items)),
	}
	if payload.IsBatch() {
		report.BatchID = payload.Batch.BatchID
	}

	for idx := range items {
		snap := &items[idx]
		if err := i.validateSnapshot(snap); err != nil {
			return nil, fmt.Errorf("item %d: %w", idx, err)
		}
		termCount := 0
		for _, refs := range snap.Taxonomies {
			termCount += len(refs)
		}
		report.Items = append(report.Items, ItemPreview{
			Title:            snap.Title,
			ContentType:      snap.ContentType,
			MediaCount:       len(snap.MediaRefs),
			TermCount:        termCount,
			HasFeaturedImage: snap.FeaturedImage != nil,
		})
	}
	return report, nil
}

func (i *Importer) validateSnapshot(snap *models.ContentSnapshot) error {
	if strings.TrimSpace(snap.Title) == "" {
		return models.NewError(models.CodeMissingField, "missing required field: post_title")
	}
	if _, ok := i.allowedTypes[snap.ContentType]; !ok {
		return models.NewError(models.CodeInvalidContentType,
			"content type %q is not importable", snap.ContentType)
	}
	return nil
}

// ImportOne imports a single snapshot inside its own transaction.
// fallbackSite is the batch envelope's export site, used when the snapshot
// does not carry its own.
func (i *Importer) ImportOne(ctx context.Context, principal auth.Principal, snap *models.ContentSnapshot, fallbackSite string) (*models.ImportedItem, error) {
	start := time.Now()
	item, err := i.importOne(ctx, principal, snap, fallbackSite)
	i.collectors.ObserveImport(snap.ContentType, time.Since(start), err)
	i.recordActivity(ctx, snap, item, err)
	return item, err
}

func (i *Importer) importOne(ctx context.Context, principal auth.Principal, snap *models.ContentSnapshot, fallbackSite string) (*models.ImportedItem, error) {
	if err := i.validateSnapshot(snap); err != nil {
		return nil, err
	}
	if !principal.Can(auth.PublishCapability(snap.ContentType)) {
		return nil, models.NewError(models.CodePermissionDenied,
			"not allowed to create %s content", snap.ContentType)
	}

	sourceSite := snap.ExportSite
	if sourceSite == "" {
		sourceSite = fallbackSite
	}
	refs := snap.MediaRefs
	if len(refs) == 0 {
		// Older exporters ship no precomputed references; scan here
		refs = media.NewExtractor(sourceSite, nil).ExtractReferences(ctx, snap)
	}

	var recordID int64
	var translations map[string]models.MediaTranslation

	err := i.tx.WithinTx(ctx, func(tx Stores) error {
		record := i.buildRecord(snap)
		id, err := tx.CreateRecord(ctx, record)
		if err != nil {
			return err
		}
		recordID = id

		translations = i.rehydrator.Rehydrate(ctx, tx, sourceSite, refs)
		repl := newReplacements(translations)

		if err := i.updateBody(ctx, tx, recordID, record.Body, snap, repl); err != nil {
			return err
		}
		if err := i.writeMeta(ctx, tx, recordID, snap, repl); err != nil {
			return err
		}
		if err := i.writeTerms(ctx, tx, recordID, snap); err != nil {
			return err
		}
		if err := i.writeCustomFields(ctx, tx, recordID, snap, repl); err != nil {
			return err
		}
		return i.writeFeaturedImage(ctx, tx, recordID, snap, translations)
	})
	if err != nil {
		return nil, wrapImportError(err)
	}

	// The attachment rows are committed now; only now may they be cached
	i.rehydrator.Remember(ctx, translations)

	for _, translation := range translations {
		i.collectors.ObserveSideload(translation.Failed())
	}

	i.logger.Info("Imported record",
		logger.Int64("record_id", recordID),
		logger.String("content_type", snap.ContentType),
		logger.String("source_site", sourceSite),
		logger.Int("media_references", len(translations)),
	)
	return &models.ImportedItem{
		RecordID: recordID,
		Title:    snap.Title,
		EditURL:  fmt.Sprintf("%s/wp-admin/post.php?post=%d&action=edit", i.siteURL, recordID),
		ViewURL:  fmt.Sprintf("%s/?p=%d", i.siteURL, recordID),
	}, nil
}

// ImportAll imports every item of a payload. Each item gets its own
// transaction; one bad item never poisons the rest. The call itself always
// succeeds, per-item failures are data in the result.
func (i *Importer) ImportAll(ctx context.Context, principal auth.Principal, payload *models.Payload) *models.BatchResult {
	fallbackSite := ""
	if payload.IsBatch() {
		fallbackSite = payload.Batch.ExportSite
	}

	items := payload.Items()
	i.collectors.ObserveBatch(len(items))

	result := &models.BatchResult{
		Succeeded: []models.ImportedItem{},
		Failed:    []models.FailedItem{},
	}
	for idx := range items {
		snap := &items[idx]
		imported, err := i.ImportOne(ctx, principal, snap, fallbackSite)
		if err != nil {
			result.Failed = append(result.Failed, models.FailedItem{
				Index: idx,
				Title: snap.Title,
				Error: err.Error(),
			})
			continue
		}
		imported.Index = idx
		result.Succeeded = append(result.Succeeded, *imported)
	}
	return result
}

// buildRecord maps a snapshot to a store row. Status is always draft: content
// arriving from another site goes through editorial review before it can be
// published here.
func (i *Importer) buildRecord(snap *models.ContentSnapshot) *models.Record {
	record := &models.Record{
		Title:         snap.Title,
		Body:          i.policy.Sanitize(snap.Body),
		ContentType:   snap.ContentType,
		Status:        "draft",
		Excerpt:       snap.Excerpt,
		CommentStatus: defaultOpen(snap.CommentStatus),
		PingStatus:    defaultOpen(snap.PingStatus),
	}
	if snap.Date != "" {
		if created, err := time.Parse(models.DateFormat, snap.Date); err == nil {
			record.CreatedAt = created
		}
	}
	return record
}

// defaultOpen fills comment/ping status when the snapshot omits it.
func defaultOpen(status string) string {
	if status == "" {
		return "open"
	}
	return status
}

// updateBody rewrites media URLs and, when the snapshot carries a block tree,
// regenerates the body from it so delimiters and attributes stay consistent
// with the rewritten attachments.
func (i *Importer) updateBody(ctx context.Context, tx Stores, recordID int64, storedBody string, snap *models.ContentSnapshot, repl replacements) error {
	var body string
	if len(snap.Blocks) > 0 {
		body = i.policy.Sanitize(blocks.Serialize(rewriteBlocks(snap.Blocks, repl)))
	} else {
		body = repl.apply(storedBody)
	}
	if body == storedBody {
		return nil
	}
	return tx.UpdateRecordBody(ctx, recordID, body)
}

func (i *Importer) writeMeta(ctx context.Context, tx Stores, recordID int64, snap *models.ContentSnapshot, repl replacements) error {
	meta := rewriteValueTree(snap.Meta, repl)
	for key, value := range meta {
		if key == featuredImageMetaKey || strings.HasPrefix(key, acfMetaPrefix) {
			continue
		}
		if err := tx.SetMeta(ctx, recordID, key, value); err != nil {
			return err
		}
	}
	return nil
}

// writeTerms resolves term refs by (taxonomy, slug), creating missing terms.
// Existing terms are reused, so importing twice never duplicates them.
func (i *Importer) writeTerms(ctx context.Context, tx Stores, recordID int64, snap *models.ContentSnapshot) error {
	for taxonomy, refs := range snap.Taxonomies {
		termIDs := make([]int64, 0, len(refs))
		for _, ref := range refs {
			term, err := i.resolveTerm(ctx, tx, taxonomy, ref)
			if err != nil {
				return err
			}
			termIDs = append(termIDs, term.ID)
		}
		if err := tx.AssociateTerms(ctx, recordID, termIDs); err != nil {
			return err
		}
	}
	return nil
}

func (i *Importer) resolveTerm(ctx context.Context, tx Stores, taxonomy string, ref models.TermRef) (*models.Term, error) {
	term, err := tx.GetTermBySlug(ctx, taxonomy, ref.Slug)
	if err == nil {
		return term, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	term, err = tx.CreateTerm(ctx, taxonomy, ref.Name, ref.Slug)
	if errors.Is(err, models.ErrAlreadyExists) {
		// Lost a race with a concurrent import
		return tx.GetTermBySlug(ctx, taxonomy, ref.Slug)
	}
	return term, err
}

func (i *Importer) writeCustomFields(ctx context.Context, tx Stores, recordID int64, snap *models.ContentSnapshot, repl replacements) error {
	fields := rewriteValueTree(snap.CustomFields, repl)
	for key, value := range fields {
		err := tx.SetCustomField(ctx, recordID, key, value)
		if errors.Is(err, models.ErrNoCustomFields) {
			// No field integration installed here; the rest would fail too
			i.logger.Warn("Custom fields skipped, no store available",
				logger.Int64("record_id", recordID),
			)
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeFeaturedImage attaches the rehydrated thumbnail. A featured image that
// could not be downloaded is dropped, not fatal; the record imports without
// it like any other failed media reference.
func (i *Importer) writeFeaturedImage(ctx context.Context, tx Stores, recordID int64, snap *models.ContentSnapshot, translations map[string]models.MediaTranslation) error {
	if snap.FeaturedImage == nil || snap.FeaturedImage.URL == "" {
		return nil
	}
	translation, ok := translations[snap.FeaturedImage.URL]
	if !ok || translation.Failed() || translation.AttachmentID == 0 {
		i.logger.Warn("Featured image not rehydrated, importing without it",
			logger.Int64("record_id", recordID),
			logger.String("url", snap.FeaturedImage.URL),
		)
		return nil
	}
	return tx.SetFeaturedImage(ctx, recordID, translation.AttachmentID)
}

func (i *Importer) recordActivity(ctx context.Context, snap *models.ContentSnapshot, item *models.ImportedItem, err error) {
	if i.tracker == nil {
		return
	}
	if err != nil {
		if trackErr := i.tracker.IncrementFailed(ctx, snap.ContentType); trackErr != nil {
			i.logger.Warn("Failed to record import metric", logger.Error(trackErr))
		}
		return
	}

	if trackErr := i.tracker.IncrementImported(ctx, snap.ContentType); trackErr != nil {
		i.logger.Warn("Failed to record import metric", logger.Error(trackErr))
	}
	if trackErr := i.tracker.AddRecentImport(ctx, metrics.RecentImport{
		RecordID:   item.RecordID,
		Title:      item.Title,
		EditURL:    item.EditURL,
		SourceSite: snap.ExportSite,
	}); trackErr != nil {
		i.logger.Warn("Failed to record recent import", logger.Error(trackErr))
	}
	if trackErr := i.tracker.UpdateLastImport(ctx); trackErr != nil {
		i.logger.Warn("Failed to update last import timestamp", logger.Error(trackErr))
	}
}

// wrapImportError keeps coded errors intact and wraps raw store errors so
// transport callers always see a code.
func wrapImportError(err error) error {
	var coded *models.Error
	if errors.As(err, &coded) {
		return err
	}
	return models.NewError(models.CodeImportFailed, "import failed: %v", err)
}
