// Package media discovers media references inside content snapshots and
// rehydrates them into the destination media library.
package media

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/sitesync/porter/internal/models"
)

// attrURLRe matches image URLs carried by markup: src= attributes, CSS
// background-image declarations and url(...) values, restricted to known
// image extensions.
var attrURLRe = regexp.MustCompile(
	`(?i)(?:src|background-image|url)\s*[=:(]\s*['"]?\s*([^'"\s>)]+\.(?:jpg|jpeg|png|gif|webp|svg))`,
)

// bareURLRe matches standalone image URLs in plain string values (meta and
// custom fields carry URLs without surrounding markup).
var bareURLRe = regexp.MustCompile(
	`(?i)(https?://[^\s'"<>()]+\.(?:jpg|jpeg|png|gif|webp|svg)|/[^\s'"<>():]*\.(?:jpg|jpeg|png|gif|webp|svg))`,
)

// galleryRe matches gallery shortcodes carrying comma-separated attachment IDs.
var galleryRe = regexp.MustCompile(`(?i)\[gallery[^\]]*ids\s*=\s*['"]([0-9,\s]+)['"]`)

// mediaExtRe is the cheap pre-filter for strings worth scanning.
var mediaExtRe = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|svg)`)

// blockMediaAttrs are block attribute keys whose string values are treated as
// media URLs.
var blockMediaAttrs = map[string]struct{}{
	"src":             {},
	"url":             {},
	"backgroundImage": {},
	"mediaUrl":        {},
	"href":            {},
	"thumbnail":       {},
}

// AttachmentURLResolver resolves a media-library attachment ID to its public
// URL. Used for gallery shortcodes, which carry IDs instead of URLs.
type AttachmentURLResolver interface {
	GetAttachmentURL(ctx context.Context, id int64) (string, error)
}

// Extractor scans snapshots for references to locally hosted media. It has no
// side effects; the same snapshot always yields the same reference map.
type Extractor struct {
	siteHost string
	resolver AttachmentURLResolver
}

// NewExtractor creates an extractor for the given source site. URLs hosted
// elsewhere are never collected. resolver may be nil, in which case gallery
// shortcode IDs are skipped.
func NewExtractor(siteURL string, resolver AttachmentURLResolver) *Extractor {
	host := ""
	if parsed, err := url.Parse(siteURL); err == nil {
		host = parsed.Host
	}
	return &Extractor{siteHost: host, resolver: resolver}
}

// ExtractReferences walks body, block tree, featured image, meta and custom
// fields, returning a deduplicated map of source URL to reference.
func (e *Extractor) ExtractReferences(ctx context.Context, snap *models.ContentSnapshot) map[string]models.MediaReference {
	refs := make(map[string]models.MediaReference)

	if snap.Body != "" {
		e.scanMarkup(ctx, snap.Body, models.LocationContent, refs)
	}
	for i := range snap.Blocks {
		e.scanBlock(ctx, &snap.Blocks[i], refs)
	}
	if snap.FeaturedImage != nil && snap.FeaturedImage.URL != "" {
		if e.isLocal(snap.FeaturedImage.URL) {
			addRef(refs, snap.FeaturedImage.URL, models.LocationFeaturedImage, 0)
		}
	}
	e.scanValueTree(snap.Meta, models.LocationMeta, refs)
	e.scanValueTree(snap.CustomFields, models.LocationCustomField, refs)

	return refs
}

// CountMedia returns how many distinct local media files the snapshot
// references.
func (e *Extractor) CountMedia(ctx context.Context, snap *models.ContentSnapshot) int {
	return len(e.ExtractReferences(ctx, snap))
}

// scanMarkup collects attribute-style URLs and gallery shortcode IDs from a
// run of markup.
func (e *Extractor) scanMarkup(ctx context.Context, content string, loc models.LocationType, refs map[string]models.MediaReference) {
	for _, match := range attrURLRe.FindAllStringSubmatch(content, -1) {
		if e.isLocal(match[1]) {
			addRef(refs, match[1], loc, 0)
		}
	}

	for _, match := range galleryRe.FindAllStringSubmatch(content, -1) {
		if e.resolver == nil {
			continue
		}
		for _, raw := range strings.Split(match[1], ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				continue
			}
			mediaURL, err := e.resolver.GetAttachmentURL(ctx, id)
			if err != nil || mediaURL == "" {
				continue
			}
			if e.isLocal(mediaURL) {
				addRef(refs, mediaURL, models.LocationGallery, id)
			}
		}
	}
}

// scanBlock recurses through attributes, inner text runs and children.
// Trees have no depth limit.
func (e *Extractor) scanBlock(ctx context.Context, block *models.Block, refs map[string]models.MediaReference) {
	e.scanBlockAttrs(block.Attrs, refs)
	for _, run := range block.InnerText {
		e.scanMarkup(ctx, run, models.LocationContent, refs)
	}
	for i := range block.Children {
		e.scanBlock(ctx, &block.Children[i], refs)
	}
}

func (e *Extractor) scanBlockAttrs(attrs map[string]any, refs map[string]models.MediaReference) {
	for key, value := range attrs {
		switch v := value.(type) {
		case string:
			if _, ok := blockMediaAttrs[key]; ok && e.isLocal(v) && mediaExtRe.MatchString(v) {
				attachmentID := int64(0)
				// An "id" sibling marks a media block; keep the source
				// attachment ID alongside the URL.
				if id, ok := attrs["id"].(float64); ok {
					attachmentID = int64(id)
				}
				addRef(refs, v, models.LocationBlock, attachmentID)
			}
		case map[string]any:
			e.scanBlockAttrs(v, refs)
		case []any:
			e.scanBlockAttrList(v, refs)
		}
	}
}

func (e *Extractor) scanBlockAttrList(values []any, refs map[string]models.MediaReference) {
	for _, value := range values {
		switch v := value.(type) {
		case map[string]any:
			e.scanBlockAttrs(v, refs)
		case []any:
			e.scanBlockAttrList(v, refs)
		}
	}
}

// scanValueTree walks arbitrarily nested meta or custom-field values looking
// for string leaves that carry image URLs.
func (e *Extractor) scanValueTree(tree map[string]any, loc models.LocationType, refs map[string]models.MediaReference) {
	for _, value := range tree {
		e.scanValue(value, loc, refs)
	}
}

func (e *Extractor) scanValue(value any, loc models.LocationType, refs map[string]models.MediaReference) {
	switch v := value.(type) {
	case string:
		if !mediaExtRe.MatchString(v) {
			return
		}
		for _, match := range bareURLRe.FindAllStringSubmatch(v, -1) {
			if e.isLocal(match[1]) {
				addRef(refs, match[1], loc, 0)
			}
		}
	case map[string]any:
		for _, nested := range v {
			e.scanValue(nested, loc, refs)
		}
	case []any:
		for _, nested := range v {
			e.scanValue(nested, loc, refs)
		}
	}
}

// isLocal reports whether the URL points at the source site: root-relative,
// or absolute with a matching host. Foreign-hosted media is never collected
// and passes through the pipeline untouched.
func (e *Extractor) isLocal(rawURL string) bool {
	if strings.HasPrefix(rawURL, "/") && !strings.HasPrefix(rawURL, "//") {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Host != "" && parsed.Host == e.siteHost
}

// addRef records a reference, keeping the first location a URL was seen at.
func addRef(refs map[string]models.MediaReference, rawURL string, loc models.LocationType, attachmentID int64) {
	if _, seen := refs[rawURL]; seen {
		return
	}
	refs[rawURL] = models.MediaReference{URL: rawURL, Type: loc, AttachmentID: attachmentID}
}
