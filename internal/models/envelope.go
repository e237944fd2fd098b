package models

// BatchEnvelope wraps multiple snapshots for one transfer. A payload without
// batch_id/items is the single-snapshot wire shape; both decode correctly.
type BatchEnvelope struct {
	BatchID       string            `json:"batch_id"`
	ExportDate    string            `json:"export_date,omitempty"`
	ExportVersion string            `json:"export_version,omitempty"`
	Count         int               `json:"count"`
	Items         []ContentSnapshot `json:"items"`
	Errors        []ExportItemError `json:"errors,omitempty"`

	ExportTimestamp int64  `json:"export_timestamp,omitempty"`
	ExportSite      string `json:"export_site,omitempty"`
}

// ExportItemError records a single record that could not be exported. Export
// continues with the remaining IDs.
type ExportItemError struct {
	RecordID int64  `json:"post_id"`
	Message  string `json:"message"`
}

// Payload is the result of decoding a transfer document: exactly one of
// Snapshot or Batch is set.
type Payload struct {
	Snapshot *ContentSnapshot
	Batch    *BatchEnvelope
}

// IsBatch reports whether the payload carried the batch wire shape.
func (p *Payload) IsBatch() bool {
	return p.Batch != nil
}

// Items returns the snapshots to import, regardless of wire shape.
func (p *Payload) Items() []ContentSnapshot {
	if p.Batch != nil {
		return p.Batch.Items
	}
	if p.Snapshot != nil {
		return []ContentSnapshot{*p.Snapshot}
	}
	return nil
}

// ImportedItem describes one successfully imported snapshot.
type ImportedItem struct {
	Index    int    `json:"index"`
	RecordID int64  `json:"post_id"`
	Title    string `json:"post_title"`
	EditURL  string `json:"edit_url"`
	ViewURL  string `json:"view_url"`
}

// FailedItem describes one snapshot whose import was rolled back.
type FailedItem struct {
	Index int    `json:"index"`
	Title string `json:"post_title"`
	Error string `json:"error"`
}

// BatchResult aggregates per-item outcomes of an import. The batch call never
// fails as a whole; item failures are data.
type BatchResult struct {
	Succeeded []ImportedItem `json:"succeeded"`
	Failed    []FailedItem   `json:"failed"`
}
