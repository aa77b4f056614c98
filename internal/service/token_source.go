package service

import (
	"context"

	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/tokenstore"
	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource backed by the device store. Tokens within the
// refresh skew of their expiry are refreshed first; if that fails but the old token has not
// expired yet, the old token is used.
func (s *AuthService) TokenSource(ctx context.Context, store *tokenstore.Store) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, svc: s, store: store}
}

type storeTokenSource struct {
	ctx   context.Context
	svc   *AuthService
	store *tokenstore.Store
}

func (ts *storeTokenSource) Token() (*oauth2.Token, error) {
	snap := ts.store.Snapshot()
	if snap.AccessToken == "" {
		return nil, ErrNoSession
	}

	exp, known := jwtverify.PeekExpiry(snap.AccessToken)
	now := ts.svc.now()
	if !known || snap.RefreshToken == "" || now.Add(ts.svc.skew).Before(exp) {
		return &oauth2.Token{AccessToken: snap.AccessToken, TokenType: "Bearer", Expiry: exp}, nil
	}

	fresh, err := ts.svc.RefreshAuthToken(ts.ctx, ts.store)
	if err != nil {
		if now.Before(exp) {
			ts.svc.logger.DebugContext(ts.ctx, "token refresh failed, using current token", "error", err)
			return &oauth2.Token{AccessToken: snap.AccessToken, TokenType: "Bearer", Expiry: exp}, nil
		}
		return nil, err
	}
	newExp, _ := jwtverify.PeekExpiry(fresh)
	return &oauth2.Token{AccessToken: fresh, TokenType: "Bearer", Expiry: newExp}, nil
}
