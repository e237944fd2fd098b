// Package auth models the acting user and its capability set. The transport
// shell resolves a token to a Principal; the core checks capabilities before
// touching the content store.
package auth

import "context"

// Capabilities checked by the export/import pipeline.
const (
	CapEditPosts    = "edit_posts"
	CapPublishPosts = "publish_posts"
	CapPublishPages = "publish_pages"
)

// Principal is the authenticated caller.
type Principal struct {
	User         string
	capabilities map[string]struct{}
}

// NewPrincipal builds a principal with the given capability names.
func NewPrincipal(user string, capabilities []string) Principal {
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return Principal{User: user, capabilities: caps}
}

// Can reports whether the principal holds the capability.
func (p Principal) Can(capability string) bool {
	_, ok := p.capabilities[capability]
	return ok
}

// PublishCapability maps a content type to the capability required to create
// records of that type.
func PublishCapability(contentType string) string {
	if contentType == "page" {
		return CapPublishPages
	}
	return CapPublishPosts
}

type contextKey struct{}

// WithPrincipal attaches the principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the principal, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
