package metrics

import "time"

// RecentImport represents a recently imported record
type RecentImport struct {
	RecordID   int64     `json:"record_id"`
	Title      string    `json:"title"`
	EditURL    string    `json:"edit_url"`
	SourceSite string    `json:"source_site"`
	ImportedAt time.Time `json:"imported_at"`
}

// Stats represents aggregated transfer statistics
type Stats struct {
	TotalExported int64              `json:"total_exported"`
	TotalImported int64              `json:"total_imported"`
	TotalFailed   int64              `json:"total_failed"`
	ContentTypes  []ContentTypeStats `json:"content_types"`
	LastImport    time.Time          `json:"last_import"`
}

// ContentTypeStats represents statistics for one content type
type ContentTypeStats struct {
	Name     string `json:"name"`
	Exported int64  `json:"exported"`
	Imported int64  `json:"imported"`
	Failed   int64  `json:"failed"`
}
