package httpx

import (
	"context"

	"github.com/target/talentgate/internal/service"
	"github.com/target/talentgate/internal/tokenstore"
)

// Unexported context key types; all handlers and middleware go through the helpers below.
type (
	storeKey  struct{}
	viewerKey struct{}
)

// SetStoreInContext returns a child context carrying the device token store.
// A nil store leaves ctx unchanged.
func SetStoreInContext(ctx context.Context, store *tokenstore.Store) context.Context {
	if store == nil {
		return ctx
	}
	return context.WithValue(ctx, storeKey{}, store)
}

// StoreFromContext returns the device token store set by the Device middleware.
func StoreFromContext(ctx context.Context) (*tokenstore.Store, bool) {
	s, ok := ctx.Value(storeKey{}).(*tokenstore.Store)
	return s, ok && s != nil
}

// SetViewerInContext returns a child context carrying the resolved viewer.
func SetViewerInContext(ctx context.Context, v service.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer set by RequireViewer.
func ViewerFromContext(ctx context.Context) (service.Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(service.Viewer)
	return v, ok
}

// IsSignedIn reports whether the request's device holds an access token.
func IsSignedIn(ctx context.Context) bool {
	s, ok := StoreFromContext(ctx)
	return ok && s.AccessToken() != ""
}
