package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/target/talentgate/internal/data"
	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/mocks"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/service"
	"github.com/target/talentgate/internal/testutil"
	"github.com/target/talentgate/internal/tokenstore"
	"go.uber.org/mock/gomock"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	tr, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: os.DirFS(TemplatePathFromTest),
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return tr
}

// harness runs the full router against mocked backend ports.
type harness struct {
	api      *mocks.MockAuthAPI
	profiles *mocks.MockProfileAPI
	backend  *tokenstore.MemoryBackend
	metrics  *statsd.Recorder
	handler  http.Handler
}

type harnessOption func(*RouterServices)

func withCSRF() harnessOption { return func(s *RouterServices) { s.CSRF = true } }

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		api:      mocks.NewMockAuthAPI(ctrl),
		profiles: mocks.NewMockProfileAPI(ctrl),
		backend:  tokenstore.NewMemoryBackend(),
		metrics:  &statsd.Recorder{},
	}
	verifier, err := jwtverify.New(jwtverify.Config{Secret: testutil.TestSecret})
	require.NoError(t, err)

	logger := quietLogger()
	table := routeaccess.Default()
	auth := service.NewAuthService(service.AuthServiceOptions{
		API:      h.api,
		Verifier: verifier,
		Metrics:  h.metrics,
		Logger:   logger,
	})
	viewer := service.NewViewerService(service.ViewerServiceOptions{
		Auth:     auth,
		Profiles: h.profiles,
		Cache:    data.NewLocalCacheRepo(data.LocalCacheConfig{}),
		Logger:   logger,
	})
	svcs := RouterServices{
		Auth:     auth,
		Viewer:   viewer,
		Switcher: service.NewRoleSwitcher(service.RoleSwitcherOptions{Auth: auth, Viewer: viewer, Logger: logger}),
		Table:    table,
		Gate: NewGate(GateConfig{
			Table:    table,
			Verifier: verifier,
			Metrics:  h.metrics,
			Logger:   logger,
		}),
		Tokens:   h.backend,
		Renderer: testRenderer(t),
		Logger:   logger,
	}
	for _, o := range opts {
		o(&svcs)
	}
	h.handler, err = NewRouter(svcs)
	require.NoError(t, err)
	return h
}

// signIn seeds a session for a fresh device and returns the device id and access token.
func (h *harness) signIn(t *testing.T, active domainauth.Role, roles ...domainauth.Role) (string, string) {
	t.Helper()
	if len(roles) == 0 {
		roles = domainauth.Roles{active}
	}
	access := testutil.MintToken(t, testutil.TestSecret, testutil.TokenClaims{
		Subject: "u1",
		Roles:   domainauth.Roles(roles).Strings(),
	})
	device := uuid.NewString()
	require.NoError(t, h.backend.Save(context.Background(), domainauth.Session{
		DeviceID:     device,
		AccessToken:  access,
		RefreshToken: "r1",
		UserID:       "u1",
		ActiveRole:   active,
	}))
	return device, access
}

func (h *harness) session(t *testing.T, device string) domainauth.Session {
	t.Helper()
	sess, err := h.backend.Load(context.Background(), device)
	if err != nil {
		return domainauth.Session{DeviceID: device}
	}
	return sess
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, target, device string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if device != "" {
		req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: device})
	}
	return req
}

func jsonRequest(method, target, device, body string) *http.Request {
	req := newRequest(method, target, device, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(target, device, body string) *http.Request {
	req := newRequest(http.MethodPost, target, device, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func htmlRequest(target, device string) *http.Request {
	req := newRequest(http.MethodGet, target, device, nil)
	req.Header.Set("Accept", "text/html")
	return req
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func userWith(roles ...domainauth.Role) domainauth.User {
	return domainauth.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada", Roles: roles, EmailVerified: true}
}
