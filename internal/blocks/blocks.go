// Package blocks parses and serializes block-delimited content bodies.
//
// A block-authored body carries HTML comments marking typed blocks:
//
//	<!-- wp:image {"id":12} --><figure>...</figure><!-- /wp:image -->
//
// with arbitrary nesting and self-closing blocks (<!-- wp:spacer /-->).
// Text outside any delimiter is kept as an untyped freeform block so that
// Serialize(Parse(body)) reproduces the body byte for byte.
package blocks

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sitesync/porter/internal/models"
)

var delimiterRe = regexp.MustCompile(
	`<!--\s+(/)?wp:([a-z][a-z0-9_-]*(?:/[a-z][a-z0-9_-]*)?)(\s+\{.*?\})?\s*(/)?-->`,
)

// HasBlocks reports whether the body contains block delimiters.
func HasBlocks(body string) bool {
	return strings.Contains(body, "<!-- wp:")
}

// Parse converts a block-delimited body into a block tree. Malformed
// delimiters (unmatched closers, stray comments) degrade to freeform text
// rather than failing.
func Parse(body string) []models.Block {
	p := &parser{}
	matches := delimiterRe.FindAllStringSubmatchIndex(body, -1)
	pos := 0

	for _, m := range matches {
		p.text(body[pos:m[0]])
		pos = m[1]

		closer := m[2] >= 0
		name := body[m[4]:m[5]]
		var attrs map[string]any
		if m[6] >= 0 {
			// Attribute JSON that does not parse is treated as absent,
			// matching the tolerant behavior of block-editor hosts.
			_ = json.Unmarshal([]byte(body[m[6]:m[7]]), &attrs)
		}
		selfClosing := m[8] >= 0

		switch {
		case closer:
			if !p.close(name) {
				p.text(body[m[0]:m[1]])
			}
		case selfClosing:
			p.add(models.Block{Type: name, Attrs: attrs})
		default:
			p.open(models.Block{Type: name, Attrs: attrs})
		}
	}
	p.text(body[pos:])

	// Unclosed blocks: close whatever is still open.
	for len(p.stack) > 0 {
		p.close(p.stack[len(p.stack)-1].Type)
	}
	p.flush(false)
	return p.top
}

// Serialize renders a block tree back into a delimited body. Inverse of
// Parse for well-formed input.
func Serialize(tree []models.Block) string {
	var sb strings.Builder
	for i := range tree {
		serializeBlock(&sb, &tree[i])
	}
	return sb.String()
}

func serializeBlock(sb *strings.Builder, b *models.Block) {
	if b.IsFreeform() {
		for _, run := range b.InnerText {
			sb.WriteString(run)
		}
		return
	}

	attrs := ""
	if len(b.Attrs) > 0 {
		// Map keys marshal in sorted order, keeping output deterministic.
		if raw, err := json.Marshal(b.Attrs); err == nil {
			attrs = " " + string(raw)
		}
	}

	if len(b.InnerText) == 0 && len(b.Children) == 0 {
		sb.WriteString("<!-- wp:" + b.Type + attrs + " /-->")
		return
	}

	sb.WriteString("<!-- wp:" + b.Type + attrs + " -->")
	for i := range b.Children {
		if i < len(b.InnerText) {
			sb.WriteString(b.InnerText[i])
		}
		serializeBlock(sb, &b.Children[i])
	}
	for i := len(b.Children); i < len(b.InnerText); i++ {
		sb.WriteString(b.InnerText[i])
	}
	sb.WriteString("<!-- /wp:" + b.Type + " -->")
}

// parser builds the tree while walking delimiter tokens in order.
type parser struct {
	top     []models.Block
	stack   []*models.Block
	pending string
}

func (p *parser) text(s string) {
	p.pending += s
}

// flush appends the pending text run to the open block, padding run/child
// interleaving so document order survives serialization.
func (p *parser) flush(force bool) {
	if len(p.stack) == 0 {
		if p.pending != "" {
			p.top = append(p.top, models.Block{InnerText: []string{p.pending}})
		}
		p.pending = ""
		return
	}
	cur := p.stack[len(p.stack)-1]
	if force || p.pending != "" {
		cur.InnerText = append(cur.InnerText, p.pending)
	}
	p.pending = ""
}

func (p *parser) open(b models.Block) {
	p.flush(len(p.stack) > 0)
	p.stack = append(p.stack, &b)
}

func (p *parser) add(b models.Block) {
	p.flush(len(p.stack) > 0)
	if len(p.stack) == 0 {
		p.top = append(p.top, b)
		return
	}
	cur := p.stack[len(p.stack)-1]
	cur.Children = append(cur.Children, b)
}

func (p *parser) close(name string) bool {
	if len(p.stack) == 0 || p.stack[len(p.stack)-1].Type != name {
		return false
	}
	p.flush(false)
	done := *p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if len(p.stack) == 0 {
		p.top = append(p.top, done)
	} else {
		cur := p.stack[len(p.stack)-1]
		cur.Children = append(cur.Children, done)
	}
	return true
}
