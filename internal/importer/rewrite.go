package importer

import (
	"sort"
	"strings"

	"github.com/sitesync/porter/internal/models"
)

// blockURLAttrs are block attribute keys that pair with an "id" attribute
// pointing at the media library. When such a URL is rewritten the id is
// repointed at the new attachment.
var blockURLAttrs = []string{"url", "src", "mediaUrl"}

// replacements flattens successful translations into an ordered list. Longer
// source URLs are replaced first so a URL that is a prefix of another never
// clobbers it.
type replacements []replacement

type replacement struct {
	old string
	new string
	id  int64
}

func newReplacements(translations map[string]models.MediaTranslation) replacements {
	repl := make(replacements, 0, len(translations))
	for oldURL, translation := range translations {
		if translation.Failed() {
			continue
		}
		repl = append(repl, replacement{
			old: oldURL,
			new: translation.NewURL,
			id:  translation.AttachmentID,
		})
	}
	sort.Slice(repl, func(i, j int) bool {
		if len(repl[i].old) != len(repl[j].old) {
			return len(repl[i].old) > len(repl[j].old)
		}
		return repl[i].old < repl[j].old
	})
	return repl
}

func (r replacements) apply(s string) string {
	for _, repl := range r {
		s = strings.ReplaceAll(s, repl.old, repl.new)
	}
	return s
}

// lookup finds the replacement whose source URL is exactly s.
func (r replacements) lookup(s string) (replacement, bool) {
	for _, repl := range r {
		if repl.old == s {
			return repl, true
		}
	}
	return replacement{}, false
}

// rewriteBlocks returns a deep copy of the tree with all translated URLs
// replaced. The input is left untouched; the snapshot still describes the
// source site.
func rewriteBlocks(tree []models.Block, repl replacements) []models.Block {
	if len(tree) == 0 {
		return nil
	}
	out := make([]models.Block, len(tree))
	for i, block := range tree {
		out[i] = models.Block{
			Type:     block.Type,
			Attrs:    rewriteAttrs(block.Attrs, repl),
			Children: rewriteBlocks(block.Children, repl),
		}
		if len(block.InnerText) > 0 {
			runs := make([]string, len(block.InnerText))
			for j, run := range block.InnerText {
				runs[j] = repl.apply(run)
			}
			out[i].InnerText = runs
		}
	}
	return out
}

func rewriteAttrs(attrs map[string]any, repl replacements) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for key, value := range attrs {
		out[key] = rewriteValue(value, repl)
	}

	// Repoint the attachment id at the sideloaded copy when its URL moved
	for _, urlKey := range blockURLAttrs {
		oldURL, ok := attrs[urlKey].(string)
		if !ok {
			continue
		}
		if match, found := repl.lookup(oldURL); found && match.id != 0 {
			if _, hasID := out["id"]; hasID {
				out["id"] = float64(match.id)
			}
			break
		}
	}
	return out
}

func rewriteValue(value any, repl replacements) any {
	switch v := value.(type) {
	case string:
		return repl.apply(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, nested := range v {
			out[key] = rewriteValue(nested, repl)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = rewriteValue(nested, repl)
		}
		return out
	default:
		return v
	}
}

// rewriteValueTree rewrites meta or custom-field values.
func rewriteValueTree(tree map[string]any, repl replacements) map[string]any {
	if tree == nil {
		return nil
	}
	out := make(map[string]any, len(tree))
	for key, value := range tree {
		out[key] = rewriteValue(value, repl)
	}
	return out
}
