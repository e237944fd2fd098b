package media

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sitesync/porter/internal/dedup"
	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/models"
)

// AttachmentStore registers sideloaded files in the destination media
// library. The importer passes a transaction-scoped store so attachment rows
// commit or roll back with the record they belong to.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, attachment *models.Attachment) (int64, error)
}

// Rehydrator downloads referenced media from the source site and registers it
// in the destination library.
type Rehydrator struct {
	fetcher *Fetcher
	library *Library
	tracker *dedup.Tracker
	logger  logger.Logger
}

// NewRehydrator creates a rehydrator. tracker may be nil when the dedup cache
// is disabled.
func NewRehydrator(fetcher *Fetcher, library *Library, tracker *dedup.Tracker, log logger.Logger) *Rehydrator {
	return &Rehydrator{
		fetcher: fetcher,
		library: library,
		tracker: tracker,
		logger:  log,
	}
}

// Rehydrate processes every reference independently and returns a translation
// per source URL. A failed reference never aborts the rest; its translation
// carries the error message instead. baseURL is the exporting site's URL,
// used to resolve root-relative references.
func (r *Rehydrator) Rehydrate(
	ctx context.Context,
	store AttachmentStore,
	baseURL string,
	refs map[string]models.MediaReference,
) map[string]models.MediaTranslation {
	translations := make(map[string]models.MediaTranslation, len(refs))

	for sourceURL, ref := range refs {
		if cached, ok := r.tracker.Lookup(ctx, sourceURL); ok {
			translations[sourceURL] = cached
			continue
		}

		translation := r.rehydrateOne(ctx, store, baseURL, ref)
		if translation.Failed() {
			r.logger.Warn("Failed to rehydrate media reference",
				logger.String("url", sourceURL),
				logger.String("location", string(ref.Type)),
				logger.String("error", translation.Err),
			)
		}
		translations[sourceURL] = translation
	}

	return translations
}

// Remember caches successful translations for future imports. Must only be
// called after the transaction holding the attachment rows has committed;
// caching earlier would let a rollback leave the cache pointing at attachment
// IDs that no longer exist.
func (r *Rehydrator) Remember(ctx context.Context, translations map[string]models.MediaTranslation) {
	for sourceURL, translation := range translations {
		if translation.Failed() || translation.AttachmentID == 0 {
			continue
		}
		r.tracker.Mark(ctx, sourceURL, translation)
	}
}

func (r *Rehydrator) rehydrateOne(
	ctx context.Context,
	store AttachmentStore,
	baseURL string,
	ref models.MediaReference,
) models.MediaTranslation {
	fetchURL, err := resolveURL(baseURL, ref.URL)
	if err != nil {
		return models.MediaTranslation{Err: err.Error()}
	}

	tempPath, err := r.fetcher.FetchToTemp(ctx, fetchURL)
	if err != nil {
		return models.MediaTranslation{Err: err.Error()}
	}
	defer os.Remove(tempPath)

	storedPath, newURL, err := r.library.Sideload(tempPath, ref.URL)
	if err != nil {
		return models.MediaTranslation{Err: err.Error()}
	}

	attachmentID, err := store.CreateAttachment(ctx, &models.Attachment{
		FileName: filepath.Base(storedPath),
		FilePath: storedPath,
		URL:      newURL,
		Title:    attachmentTitle(ref.URL),
	})
	if err != nil {
		os.Remove(storedPath)
		return models.MediaTranslation{Err: err.Error()}
	}

	r.logger.Info("Sideloaded media file",
		logger.String("source_url", ref.URL),
		logger.String("new_url", newURL),
		logger.Int64("attachment_id", attachmentID),
	)
	return models.MediaTranslation{AttachmentID: attachmentID, NewURL: newURL}
}

// resolveURL makes root-relative references absolute against the exporting
// site so they can be downloaded.
func resolveURL(baseURL, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() {
		return ref, nil
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return "", &url.Error{Op: "resolve", URL: ref, Err: errNoBase}
	}
	return base.ResolveReference(parsed).String(), nil
}

var errNoBase = &noBaseError{}

type noBaseError struct{}

func (*noBaseError) Error() string {
	return "relative reference with no export site to resolve against"
}

// attachmentTitle derives a human title from the source file name.
func attachmentTitle(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	base := path.Base(parsed.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}
