package service

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/mocks"
	"github.com/target/talentgate/internal/testutil"
	"github.com/target/talentgate/internal/tokenstore"
	"go.uber.org/mock/gomock"
)

type cookieJar struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

func (j *cookieJar) SetCookie(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cookies == nil {
		j.cookies = map[string]*http.Cookie{}
	}
	j.cookies[c.Name] = c
}

func (j *cookieJar) value(name string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if c, ok := j.cookies[name]; ok {
		return c.Value
	}
	return ""
}

type fixture struct {
	api      *mocks.MockAuthAPI
	profiles *mocks.MockProfileAPI
	backend  *tokenstore.MemoryBackend
	cookies  *cookieJar
	auth     *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		api:      mocks.NewMockAuthAPI(ctrl),
		profiles: mocks.NewMockProfileAPI(ctrl),
		backend:  tokenstore.NewMemoryBackend(),
		cookies:  &cookieJar{},
	}
	f.auth = NewAuthService(AuthServiceOptions{API: f.api})
	return f
}

func (f *fixture) store(t *testing.T) *tokenstore.Store {
	t.Helper()
	s, err := tokenstore.Open(context.Background(), tokenstore.Options{
		Backend:  f.backend,
		DeviceID: "device-1",
		Cookies:  f.cookies,
	})
	require.NoError(t, err)
	return s
}

// signedIn returns a store holding a long-lived access token.
func (f *fixture) signedIn(t *testing.T, role domainauth.Role) (*tokenstore.Store, string) {
	t.Helper()
	s := f.store(t)
	access := testutil.MintToken(t, testutil.TestSecret, testutil.TokenClaims{Subject: "u1", Roles: []string{string(role)}})
	require.NoError(t, s.StoreTokens(context.Background(), domainauth.Tokens{
		AccessToken:  access,
		RefreshToken: "r1",
		UserID:       "u1",
		ActiveRole:   role,
	}))
	return s, access
}
