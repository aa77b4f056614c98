package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/testutil"
)

func newTestGate(t *testing.T, secret string, rec *statsd.Recorder, logger *slog.Logger) *Gate {
	t.Helper()
	v, err := jwtverify.New(jwtverify.Config{Secret: secret})
	require.NoError(t, err)
	if logger == nil {
		logger = quietLogger()
	}
	return NewGate(GateConfig{
		Table:    routeaccess.Default(),
		Verifier: v,
		Metrics:  rec,
		Logger:   logger,
	})
}

func serveGate(g *Gate, req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rec, req)
	return rec, reached
}

func TestGateCallbackTokens(t *testing.T) {
	valid := testutil.MintToken(t, testutil.TestSecret, testutil.TokenClaims{Subject: "u1", Roles: []string{"talent"}})
	expired := testutil.MintToken(t, testutil.TestSecret, testutil.TokenClaims{
		Subject:   "u1",
		Roles:     []string{"talent"},
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	forged := testutil.MintToken(t, "some-other-secret", testutil.TokenClaims{Subject: "u1", Roles: []string{"talent"}})

	tests := []struct {
		name     string
		target   string
		outcome  string
		location string
	}{
		{
			name:     "returning user goes to token landing with query",
			target:   "/dashboard?accessToken=" + valid + "&refreshToken=r1",
			outcome:  GateToTokenLanding,
			location: "/auth/oauth-success?accessToken=" + valid + "&refreshToken=r1",
		},
		{
			name:     "new user goes to onboarding with query",
			target:   "/?accessToken=" + valid + "&isNewUser=true",
			outcome:  GateToOnboarding,
			location: "/onboarding?accessToken=" + valid + "&isNewUser=true",
		},
		{
			name:    "new user already on onboarding passes",
			target:  "/onboarding?accessToken=" + valid + "&isNewUser=true",
			outcome: GateOnboardingNewUser,
		},
		{
			name:    "new user on onboarding with trailing slash passes",
			target:  "/onboarding/?accessToken=" + valid + "&isNewUser=true",
			outcome: GateOnboardingNewUser,
		},
		{
			name:     "existing user on onboarding is sent to token landing",
			target:   "/onboarding?accessToken=" + valid,
			outcome:  GateToTokenLanding,
			location: "/auth/oauth-success?accessToken=" + valid,
		},
		{
			name:     "expired token goes to login",
			target:   "/dashboard?accessToken=" + expired,
			outcome:  GateToLogin,
			location: "/login",
		},
		{
			name:     "bad signature goes to login",
			target:   "/dashboard?accessToken=" + forged,
			outcome:  GateToLogin,
			location: "/login",
		},
		{
			name:     "garbage token goes to login",
			target:   "/jobs?accessToken=not-a-jwt",
			outcome:  GateToLogin,
			location: "/login",
		},
		{
			name:    "token landing itself is left alone",
			target:  "/auth/oauth-success?accessToken=" + valid,
			outcome: GatePass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &statsd.Recorder{}
			g := newTestGate(t, testutil.TestSecret, rec, nil)

			d := g.Decide(httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.location, d.Location)

			resp, reached := serveGate(g, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if tt.location == "" {
				assert.True(t, reached)
				return
			}
			assert.False(t, reached)
			assert.Equal(t, http.StatusTemporaryRedirect, resp.Code)
			assert.Equal(t, tt.location, resp.Header().Get("Location"))
			assert.EqualValues(t, 1, rec.Sum("gate.decision", map[string]string{"outcome": tt.outcome}))
		})
	}
}

func TestGateProtectedRoutes(t *testing.T) {
	recruiter := testutil.MintToken(t, testutil.TestSecret, testutil.TokenClaims{Subject: "u1", Roles: []string{"recruiter"}})
	talent := testutil.MintToken(t, testutil.TestSecret, testutil.TokenClaims{Subject: "u2", Roles: []string{"talent"}})

	tests := []struct {
		name     string
		path     string
		bearer   string
		outcome  string
		location string
	}{
		{name: "allowed role", path: "/employer/jobs", bearer: recruiter, outcome: GateProtectedAllowed},
		{name: "wrong role goes home", path: "/employer/jobs", bearer: talent, outcome: GateToRoleHome, location: "/dashboard"},
		{name: "recruiter home is employer", path: "/mentor", bearer: recruiter, outcome: GateToRoleHome, location: "/employer"},
		{name: "no bearer is left to the page", path: "/employer", outcome: GateProtectedUnchecked},
		{name: "bad bearer is left to the page", path: "/employer", bearer: "junk", outcome: GateProtectedUnchecked},
		{name: "public route", path: "/login", bearer: talent, outcome: GatePass},
		{name: "unknown route", path: "/about", outcome: GatePass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(t, testutil.TestSecret, &statsd.Recorder{}, nil)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			d := g.Decide(req)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.location, d.Location)
		})
	}
}

func TestGateFailsOpenWithoutSecret(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rec := &statsd.Recorder{}
	g := newTestGate(t, "", rec, logger)

	token := testutil.MintToken(t, testutil.TestSecret, testutil.TokenClaims{Subject: "u1", Roles: []string{"talent"}})
	for range 3 {
		_, reached := serveGate(g, httptest.NewRequest(http.MethodGet, "/dashboard?accessToken="+token, nil))
		assert.True(t, reached)
	}

	bearer := httptest.NewRequest(http.MethodGet, "/employer", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)
	_, reached := serveGate(g, bearer)
	assert.True(t, reached)

	assert.EqualValues(t, 4, rec.Sum("gate.decision", map[string]string{"outcome": GateFailOpen}))
	assert.Equal(t, 1, strings.Count(logs.String(), "JWT secret not configured"))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer  abc ")
	tok, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = bearerToken(req)
	assert.False(t, ok)
}
