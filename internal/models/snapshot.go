// Package models defines the portable snapshot wire format and the rows of
// the content store.
package models

import "time"

// DateFormat is the layout used for post_date values on the wire.
const DateFormat = "2006-01-02 15:04:05"

// LocationType identifies where in a snapshot a media reference was found.
type LocationType string

const (
	LocationContent       LocationType = "content"
	LocationBlock         LocationType = "block"
	LocationGallery       LocationType = "gallery"
	LocationFeaturedImage LocationType = "featured_image"
	LocationMeta          LocationType = "meta"
	LocationCustomField   LocationType = "acf"
)

// ContentSnapshot is the portable representation of one content record and
// its relations. It is created fresh on every export and fully consumed by
// one import.
type ContentSnapshot struct {
	Title         string                    `json:"post_title"`
	Body          string                    `json:"post_content"`
	ContentType   string                    `json:"post_type"`
	Status        string                    `json:"post_status,omitempty"`
	Excerpt       string                    `json:"post_excerpt,omitempty"`
	Date          string                    `json:"post_date,omitempty"`
	CommentStatus string                    `json:"comment_status,omitempty"`
	PingStatus    string                    `json:"ping_status,omitempty"`
	Meta          map[string]any            `json:"meta,omitempty"`
	Taxonomies    map[string][]TermRef      `json:"taxonomies,omitempty"`
	FeaturedImage *FeaturedImage            `json:"featured_image,omitempty"`
	Blocks        []Block                   `json:"content_blocks,omitempty"`
	CustomFields  map[string]any            `json:"acf_fields,omitempty"`
	MediaRefs     map[string]MediaReference `json:"media_references,omitempty"`

	ExportVersion   string `json:"export_version,omitempty"`
	ExportTimestamp int64  `json:"export_timestamp,omitempty"`
	ExportSite      string `json:"export_site,omitempty"`
}

// TermRef is a portable taxonomy term descriptor. Term IDs are never carried
// across installations; terms are resolved by (name, slug) on import.
type TermRef struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// FeaturedImage describes the source record's thumbnail attachment.
type FeaturedImage struct {
	ID    int64          `json:"id"`
	Title string         `json:"title,omitempty"`
	Alt   string         `json:"alt,omitempty"`
	URL   string         `json:"url"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// MediaReference is a discovered pointer at locally hosted media. The map key
// in ContentSnapshot.MediaRefs is the source URL; the struct repeats it so a
// reference is self-describing when handled alone.
type MediaReference struct {
	URL          string       `json:"url"`
	Type         LocationType `json:"type"`
	AttachmentID int64        `json:"id,omitempty"`
}

// MediaTranslation is the import-time result of rehydrating one reference.
// Either NewURL/AttachmentID are set or Err carries the failure message.
// Translations are never persisted; they live for one import call.
type MediaTranslation struct {
	AttachmentID int64  `json:"attachment_id,omitempty"`
	NewURL       string `json:"new_url,omitempty"`
	Err          string `json:"error,omitempty"`
}

// Failed reports whether the reference could not be rehydrated.
func (t MediaTranslation) Failed() bool {
	return t.Err != ""
}

// Record is a row of the destination content store.
type Record struct {
	ID            int64     `db:"id"`
	Title         string    `db:"title"`
	Body          string    `db:"body"`
	ContentType   string    `db:"content_type"`
	Status        string    `db:"status"`
	Excerpt       string    `db:"excerpt"`
	CommentStatus string    `db:"comment_status"`
	PingStatus    string    `db:"ping_status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Term is a taxonomy term row.
type Term struct {
	ID       int64  `db:"id"`
	Taxonomy string `db:"taxonomy"`
	Name     string `db:"name"`
	Slug     string `db:"slug"`
}

// Attachment is a media library row created by a sideload.
type Attachment struct {
	ID        int64     `db:"id"`
	FileName  string    `db:"file_name"`
	FilePath  string    `db:"file_path"`
	URL       string    `db:"url"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
}
