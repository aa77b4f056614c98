package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggingRedactsRedirectQuery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/auth/oauth-success?accessToken=secret-token", http.StatusTemporaryRedirect)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	out := logs.String()
	assert.Contains(t, out, "status=307")
	assert.Contains(t, out, "/auth/oauth-success?[redacted]")
	assert.NotContains(t, out, "secret-token")
}

func TestRecover(t *testing.T) {
	h := Recover(quietLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mw("outer"), nil, mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"/jobs/42":                 "/jobs/42",
		"/employer?tab=applicants": "/employer?tab=applicants",
		"":                         "",
		"//evil.example":           "",
		"https://evil.example/x":   "",
		"jobs":                     "",
		"javascript:alert(1)":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), in)
	}
}

func TestSafeRedirectFromURL(t *testing.T) {
	assert.Equal(t, "/jobs/1?x=2", safeRedirectFromURL("https://app.example/jobs/1?x=2", "app.example"))
	assert.Equal(t, "", safeRedirectFromURL("https://evil.example/jobs/1", "app.example"))
	assert.Equal(t, "/jobs/1", safeRedirectFromURL("/jobs/1", "app.example"))
	assert.Equal(t, "", safeRedirectFromURL("", "app.example"))
}

func TestLoginRedirect(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/mentor/sessions?week=3", nil)
	assert.Equal(t, "/login?redirect_uri=%2Fmentor%2Fsessions%3Fweek%3D3", loginRedirect("/login", r))
}

func TestWantsHTML(t *testing.T) {
	req := func(path, accept string, htmx bool) *http.Request {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		if accept != "" {
			r.Header.Set("Accept", accept)
		}
		if htmx {
			r.Header.Set("Hx-Request", "true")
		}
		return r
	}
	assert.True(t, wantsHTML(req("/dashboard", "text/html,application/xhtml+xml", false)))
	assert.True(t, wantsHTML(req("/dashboard", "", false)))
	assert.True(t, wantsHTML(req("/dashboard", "*/*", true)))
	assert.False(t, wantsHTML(req("/dashboard", "application/json", false)))
	assert.False(t, wantsHTML(req("/api/me", "text/html", true)))
}

func TestIsSecureRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, isSecureRequest(r))
	r.Header.Set("X-Forwarded-Proto", "http, HTTPS")
	assert.True(t, isSecureRequest(r))
}
