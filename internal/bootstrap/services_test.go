package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/talentgate/config"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/testutil"
)

// devStack wires the real router to the in-process backend and in-memory storage.
func devStack(t *testing.T) (http.Handler, *statsd.Recorder) {
	t.Helper()
	cfg := baseConfig()
	cfg.Backend.Mode = config.BackendModeMock
	cfg.Backend.Dev.OAuthEnabled = true
	cfg.Auth.JWTSecret = testutil.TestSecret
	cfg.HTTP.CSRFEnabled = false

	rec := &statsd.Recorder{}
	services, err := NewServices(&ServiceDeps{Config: cfg, Metrics: rec, Logger: quietLogger()})
	require.NoError(t, err)
	require.NotNil(t, services.Backend.Dev)

	handler, err := NewHTTPHandler(cfg, services, quietLogger())
	require.NoError(t, err)
	return handler, rec
}

func serve(h http.Handler, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func deviceCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "device_id" {
			return c
		}
	}
	t.Fatal("no device cookie issued")
	return nil
}

func TestNewServices_RequiresConfig(t *testing.T) {
	_, err := NewServices(nil)
	require.Error(t, err)
}

func TestNewServices_BadRouteTable(t *testing.T) {
	cfg := baseConfig()
	cfg.RouteTableFile = t.TempDir() + "/missing.yaml"
	_, err := NewServices(&ServiceDeps{Config: cfg, Logger: quietLogger()})
	require.Error(t, err)
}

func TestDevStack_LoginThenMe(t *testing.T) {
	h, metrics := devStack(t)

	login := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"multi@example.com","password":"talentgate-dev"}`))
	login.Header.Set("Content-Type", "application/json")
	rec := serve(h, login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	device := deviceCookie(t, rec)

	var signIn map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signIn))
	assert.Equal(t, "/dashboard", signIn["redirectTo"])
	assert.NotContains(t, rec.Body.String(), "accessToken")

	me := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	me.Header.Set("Accept", "application/json")
	rec = serve(h, me, device)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		ActiveRole string   `json:"activeRole"`
		Roles      []string `json:"roles"`
		Profile    *struct {
			Role string `json:"role"`
		} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "talent", body.ActiveRole)
	assert.Equal(t, []string{"talent", "mentor", "employer"}, body.Roles)
	require.NotNil(t, body.Profile)
	assert.Equal(t, "talent", body.Profile.Role)

	assert.EqualValues(t, 1, metrics.Sum("auth.request", map[string]string{"op": "login", "outcome": "ok"}))
}

func TestDevStack_OAuthRoundTrip(t *testing.T) {
	h, metrics := devStack(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/dev/oauth/mentor@example.com", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	callback := rec.Header().Get("Location")

	// The gate verifies the callback token and forwards it to the token landing route.
	rec = serve(h, httptest.NewRequest(http.MethodGet, callback, nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	landing, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/oauth-success", landing.Path)

	rec = serve(h, httptest.NewRequest(http.MethodGet, landing.String(), nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/mentor", rec.Header().Get("Location"))
	device := deviceCookie(t, rec)

	page := httptest.NewRequest(http.MethodGet, "/mentor", nil)
	page.Header.Set("Accept", "text/html")
	rec = serve(h, page, device)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.EqualValues(t, 1, metrics.Sum("gate.decision", map[string]string{"outcome": "token_landing"}))
}

func TestDevStack_RoleGatedPageRedirectsToLogin(t *testing.T) {
	h, _ := devStack(t)

	page := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	page.Header.Set("Accept", "text/html")
	rec := serve(h, page)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard", rec.Header().Get("Location"))
}
