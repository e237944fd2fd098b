package models

// Block is one node of the structured content tree mirroring a block-authored
// body. InnerText runs and Children interleave in document order: text run i
// precedes child i, with an optional trailing run after the last child.
type Block struct {
	Type      string         `json:"type"`
	Attrs     map[string]any `json:"attributes,omitempty"`
	InnerText []string       `json:"inner_text,omitempty"`
	Children  []Block        `json:"children,omitempty"`
}

// IsFreeform reports whether the block is untyped literal markup between
// delimited blocks.
func (b *Block) IsFreeform() bool {
	return b.Type == ""
}
