package blocks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesync/porter/internal/blocks"
	"github.com/sitesync/porter/internal/models"
)

func TestHasBlocks(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want bool
	}{
		{"block body", `<!-- wp:paragraph --><p>hi</p><!-- /wp:paragraph -->`, true},
		{"plain html", `<p>hi</p>`, false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, blocks.HasBlocks(tc.body))
		})
	}
}

func TestParse_SingleBlock(t *testing.T) {
	body := `<!-- wp:image {"id":12,"url":"/wp-content/uploads/a.png"} --><figure><img src="/wp-content/uploads/a.png"/></figure><!-- /wp:image -->`

	tree := blocks.Parse(body)
	require.Len(t, tree, 1)

	b := tree[0]
	assert.Equal(t, "image", b.Type)
	assert.Equal(t, float64(12), b.Attrs["id"])
	require.Len(t, b.InnerText, 1)
	assert.Equal(t, `<figure><img src="/wp-content/uploads/a.png"/></figure>`, b.InnerText[0])
}

func TestParse_Nested(t *testing.T) {
	body := `<!-- wp:columns --><div class="columns"><!-- wp:column --><div class="col"></div><!-- /wp:column --></div><!-- /wp:columns -->`

	tree := blocks.Parse(body)
	require.Len(t, tree, 1)

	outer := tree[0]
	assert.Equal(t, "columns", outer.Type)
	require.Len(t, outer.Children, 1)
	assert.Equal(t, "column", outer.Children[0].Type)
	require.Len(t, outer.InnerText, 2)
	assert.Equal(t, `<div class="columns">`, outer.InnerText[0])
	assert.Equal(t, `</div>`, outer.InnerText[1])
}

func TestParse_SelfClosing(t *testing.T) {
	tree := blocks.Parse(`<!-- wp:spacer {"height":40} /-->`)
	require.Len(t, tree, 1)
	assert.Equal(t, "spacer", tree[0].Type)
	assert.Empty(t, tree[0].InnerText)
	assert.Empty(t, tree[0].Children)
}

func TestParse_FreeformBetweenBlocks(t *testing.T) {
	body := `<p>intro</p><!-- wp:separator /--><p>outro</p>`

	tree := blocks.Parse(body)
	require.Len(t, tree, 3)
	assert.True(t, tree[0].IsFreeform())
	assert.Equal(t, "<p>intro</p>", tree[0].InnerText[0])
	assert.Equal(t, "separator", tree[1].Type)
	assert.True(t, tree[2].IsFreeform())
	assert.Equal(t, "<p>outro</p>", tree[2].InnerText[0])
}

func TestParse_PlainHTMLBody(t *testing.T) {
	tree := blocks.Parse(`<p>no blocks here</p>`)
	require.Len(t, tree, 1)
	assert.True(t, tree[0].IsFreeform())
}

func TestParse_UnmatchedCloserKeptAsText(t *testing.T) {
	body := `<!-- /wp:paragraph --><p>x</p>`
	tree := blocks.Parse(body)
	require.Len(t, tree, 1)
	require.True(t, tree[0].IsFreeform())
	assert.Equal(t, body, tree[0].InnerText[0])
}

func TestSerialize_RoundTrip(t *testing.T) {
	bodies := []string{
		`<!-- wp:paragraph --><p>hello</p><!-- /wp:paragraph -->`,
		`<!-- wp:image {"id":12} --><figure><img src="/a.png"/></figure><!-- /wp:image -->`,
		`<!-- wp:columns --><div><!-- wp:column --><div>a</div><!-- /wp:column --><!-- wp:column --><div>b</div><!-- /wp:column --></div><!-- /wp:columns -->`,
		`<p>lead</p><!-- wp:spacer {"height":40} /--><p>tail</p>`,
		"<!-- wp:paragraph -->\n<p>spaced</p>\n<!-- /wp:paragraph -->",
	}

	for _, body := range bodies {
		assert.Equal(t, body, blocks.Serialize(blocks.Parse(body)))
	}
}

func TestSerialize_Freeform(t *testing.T) {
	tree := []models.Block{{InnerText: []string{"<p>raw</p>"}}}
	assert.Equal(t, "<p>raw</p>", blocks.Serialize(tree))
}

func TestSerialize_EmptyBlockSelfCloses(t *testing.T) {
	tree := []models.Block{{Type: "separator"}}
	assert.Equal(t, "<!-- wp:separator /-->", blocks.Serialize(tree))
}
