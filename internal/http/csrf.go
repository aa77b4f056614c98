package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

// CSRF defaults. The cookie is readable by page scripts so they can echo it in the header.
const (
	DefaultCSRFCookieName = "csrf_token"
	DefaultCSRFHeaderName = "X-Csrf-Token"
	DefaultCSRFFormField  = "csrf_token"
	csrfTokenBytes        = 32
	csrfCookieMaxAge      = 12 * 3600
)

// CSRFConfig configures double-submit CSRF protection.
type CSRFConfig struct {
	CookieDomain string
	// Exempt paths skip validation (exact match), e.g. the token refresh called by API clients.
	Exempt []string
}

type csrfTokenKey struct{}

var errCSRF = errors.New("CSRF token validation failed")

// CSRFProtection compares the csrf_token cookie with the X-Csrf-Token header or the
// csrf_token form field on every unsafe method. A token is issued when the cookie is missing.
func CSRFProtection(cfg CSRFConfig) Middleware {
	exempt := make(map[string]bool, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(DefaultCSRFCookieName); err == nil {
				token = c.Value
			}
			unsafe := r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions
			if unsafe && !exempt[r.URL.Path] && !csrfMatches(r, token) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "csrf_failed",
					Err:     errCSRF,
				})
				return
			}

			if token == "" {
				var err error
				if token, err = newCSRFToken(); err != nil {
					http.Error(w, "unable to generate CSRF token", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     DefaultCSRFCookieName,
					Value:    token,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					Secure:   isSecureRequest(r),
					SameSite: http.SameSiteStrictMode,
					MaxAge:   csrfCookieMaxAge,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token)))
		})
	}
}

// CSRFToken returns the token for embedding in rendered forms.
func CSRFToken(r *http.Request) string {
	t, _ := r.Context().Value(csrfTokenKey{}).(string)
	return t
}

func csrfMatches(r *http.Request, cookieToken string) bool {
	if cookieToken == "" {
		return false
	}
	sent := r.Header.Get(DefaultCSRFHeaderName)
	if sent == "" {
		// PostFormValue parses url-encoded and multipart bodies; the handler reads r.PostForm later.
		sent = r.PostFormValue(DefaultCSRFFormField)
	}
	return sent != "" && subtle.ConstantTimeCompare([]byte(sent), []byte(cookieToken)) == 1
}

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
