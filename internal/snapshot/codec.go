// Package snapshot serializes content snapshots to the portable JSON transfer
// format and decodes incoming documents back into typed payloads.
package snapshot

import (
	"encoding/json"
	"time"

	"github.com/sitesync/porter/internal/models"
)

// ExportVersion is stamped on every document this codec produces.
const ExportVersion = "1.2.0"

// requiredFields must be present on a snapshot document. Presence is what is
// checked, not emptiness; an intentionally empty body is valid.
var requiredFields = []string{"post_title", "post_content", "post_type"}

// Codec encodes snapshots and batches for transfer. The site URL is stamped
// into documents so importers can resolve root-relative media references.
type Codec struct {
	siteURL string
	now     func() time.Time
}

// NewCodec creates a codec identifying exports as coming from siteURL.
func NewCodec(siteURL string) *Codec {
	return &Codec{siteURL: siteURL, now: time.Now}
}

// EncodeSnapshot stamps export metadata onto the snapshot and renders it as
// indented JSON.
func (c *Codec) EncodeSnapshot(snap *models.ContentSnapshot) ([]byte, error) {
	snap.ExportVersion = ExportVersion
	snap.ExportTimestamp = c.now().Unix()
	snap.ExportSite = c.siteURL

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, models.NewError(models.CodeEncodeFailed, "failed to encode snapshot: %v", err)
	}
	return data, nil
}

// EncodeBatch stamps export metadata onto the envelope and renders it as
// indented JSON. Count is recomputed from the items.
func (c *Codec) EncodeBatch(batch *models.BatchEnvelope) ([]byte, error) {
	now := c.now()
	batch.ExportVersion = ExportVersion
	batch.ExportDate = now.Format(models.DateFormat)
	batch.ExportTimestamp = now.Unix()
	batch.ExportSite = c.siteURL
	batch.Count = len(batch.Items)

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, models.NewError(models.CodeEncodeFailed, "failed to encode batch: %v", err)
	}
	return data, nil
}

// Decode parses a transfer document, detecting the wire shape: documents with
// batch_id and items are batches, everything else is a single snapshot.
// Validation is shallow; for batches only the first item is checked, matching
// the cost profile of large transfers. Per-item problems surface during
// import, where they fail only that item.
func Decode(data []byte) (*models.Payload, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, models.NewError(models.CodeDecodeFailed, "invalid JSON: %v", err)
	}

	_, hasBatchID := root["batch_id"]
	rawItems, hasItems := root["items"]
	if hasBatchID && hasItems {
		return decodeBatch(data, rawItems)
	}
	return decodeSnapshot(data, root)
}

func decodeBatch(data []byte, rawItems json.RawMessage) (*models.Payload, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return nil, models.NewError(models.CodeDecodeFailed, "invalid items array: %v", err)
	}
	if len(items) == 0 {
		return nil, models.NewError(models.CodeEmptyBatch, "batch contains no items")
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &first); err != nil {
		return nil, models.NewError(models.CodeDecodeFailed, "invalid batch item: %v", err)
	}
	if err := validateRequired(first); err != nil {
		return nil, err
	}

	var batch models.BatchEnvelope
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, models.NewError(models.CodeDecodeFailed, "invalid batch document: %v", err)
	}
	return &models.Payload{Batch: &batch}, nil
}

func decodeSnapshot(data []byte, root map[string]json.RawMessage) (*models.Payload, error) {
	if err := validateRequired(root); err != nil {
		return nil, err
	}

	var snap models.ContentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, models.NewError(models.CodeDecodeFailed, "invalid snapshot document: %v", err)
	}
	return &models.Payload{Snapshot: &snap}, nil
}

func validateRequired(doc map[string]json.RawMessage) error {
	for _, field := range requiredFields {
		if _, ok := doc[field]; !ok {
			return models.NewError(models.CodeMissingField, "missing required field: %s", field)
		}
	}
	return nil
}
