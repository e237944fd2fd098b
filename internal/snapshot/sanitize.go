package snapshot

import "github.com/microcosm-cc/bluemonday"

// NewBodyPolicy returns the HTML policy applied to imported content bodies.
// It extends the UGC baseline with the markup page builders emit: figures,
// responsive image attributes, inline styles, and HTML comments. Comments
// must survive because block editors use them as structural delimiters.
func NewBodyPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowComments()
	policy.AllowAttrs("class", "style").Globally()
	policy.AllowAttrs("srcset", "sizes", "loading", "width", "height").OnElements("img")
	policy.AllowElements("figure", "figcaption", "video", "audio", "source")
	policy.AllowAttrs("controls", "src", "poster", "type").OnElements("video", "audio", "source")
	return policy
}
