package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func csrfHandler(cfg CSRFConfig) http.Handler {
	return CSRFProtection(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CSRFToken(r)))
	}))
}

func TestCSRFIssuesToken(t *testing.T) {
	rec := httptest.NewRecorder()
	csrfHandler(CSRFConfig{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	c := responseCookie(rec, DefaultCSRFCookieName)
	require.NotNil(t, c)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.False(t, c.HttpOnly)
	assert.Equal(t, c.Value, rec.Body.String(), "token is exposed to templates")
}

func TestCSRFValidation(t *testing.T) {
	const token = "tok-123"
	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{
			name: "header matches",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
				r.Header.Set(DefaultCSRFHeaderName, token)
				return r
			},
			status: http.StatusOK,
		},
		{
			name: "form field matches",
			req: func() *http.Request {
				body := url.Values{DefaultCSRFFormField: {token}}.Encode()
				r := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(body))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return r
			},
			status: http.StatusOK,
		},
		{
			name: "mismatch",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
				r.Header.Set(DefaultCSRFHeaderName, "other")
				return r
			},
			status: http.StatusForbidden,
		},
		{
			name:   "missing",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodPut, "/api/profile", nil) },
			status: http.StatusForbidden,
		},
		{
			name:   "exempt path",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodPost, "/auth/refresh", nil) },
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req()
			req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: token})
			rec := httptest.NewRecorder()
			csrfHandler(CSRFConfig{Exempt: []string{"/auth/refresh"}}).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), "csrf_failed")
			}
		})
	}
}

func TestCSRFFormFieldIsNotDecoded(t *testing.T) {
	h := newHarness(t, withCSRF())
	h.api.EXPECT().ForgotPassword(gomock.Any(), "ada@example.com").Return(nil)

	form := url.Values{"email": {"ada@example.com"}, DefaultCSRFFormField: {"tok"}}
	req := formRequest("/auth/forgot-password", "", form.Encode())
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: "tok"})
	rec := h.do(req)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}
