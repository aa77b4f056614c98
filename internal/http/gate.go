package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/routeaccess"
)

// Gate outcomes, also used as the outcome tag of the gate.decision counter.
const (
	GatePass               = "pass"
	GateFailOpen           = "fail_open"
	GateToTokenLanding     = "token_landing"
	GateToOnboarding       = "onboarding"
	GateToLogin            = "login"
	GateToRoleHome         = "role_home"
	GateOnboardingNewUser  = "onboarding_new_user"
	GateProtectedAllowed   = "protected_allowed"
	GateProtectedUnchecked = "protected_unchecked"
)

// GateConfig configures the request gate.
type GateConfig struct {
	Table    *routeaccess.Table
	Verifier *jwtverify.Verifier
	// TokenLandingPath is the page that moves tokens from the URL into storage.
	TokenLandingPath string
	Metrics          statsd.Sink
	Logger           *slog.Logger
}

// Gate runs before routing. It catches OAuth callbacks that carry tokens on the URL and
// makes a best-effort role check on protected pages when a bearer token is sent.
// Without a signing secret it lets every request through.
type Gate struct {
	table   *routeaccess.Table
	verify  *jwtverify.Verifier
	landing string
	metrics statsd.Sink
	logger  *slog.Logger

	missingSecret sync.Once
}

// GateDecision is the gate's verdict for one request. Location is empty on pass-through.
type GateDecision struct {
	Outcome  string
	Location string
}

// NewGate builds a Gate. A nil table uses the embedded default.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		table:   cfg.Table,
		verify:  cfg.Verifier,
		landing: cfg.TokenLandingPath,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if g.table == nil {
		g.table = routeaccess.Default()
	}
	if g.landing == "" {
		g.landing = routeaccess.DefaultTokenLandingPath
	}
	if g.metrics == nil {
		g.metrics = statsd.Discard
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gate")
	return g
}

// Middleware applies Decide and issues 307 redirects.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		g.metrics.Count("gate.decision", 1, map[string]string{"outcome": d.Outcome})
		if d.Location != "" {
			http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Decide evaluates the request without writing a response.
func (g *Gate) Decide(r *http.Request) GateDecision {
	path := r.URL.Path
	query := r.URL.Query()

	if query.Get("accessToken") != "" && !samePath(path, g.landing) {
		return g.decideCallback(r, query)
	}
	if g.table.IsProtected(path) && !g.table.IsPublicRoute(path) {
		return g.decideProtected(r)
	}
	return GateDecision{Outcome: GatePass}
}

func (g *Gate) decideCallback(r *http.Request, query url.Values) GateDecision {
	path := r.URL.Path
	newUser := query.Get("isNewUser") == "true"

	if samePath(path, routeaccess.OnboardingPath) {
		if !newUser {
			return GateDecision{Outcome: GateToTokenLanding, Location: withQuery(g.landing, r.URL.RawQuery)}
		}
		return GateDecision{Outcome: GateOnboardingNewUser}
	}

	res := g.verify.Verify(query.Get("accessToken"))
	switch res.Status {
	case jwtverify.StatusUnavailable:
		g.warnMissingSecret(r)
		return GateDecision{Outcome: GateFailOpen}
	case jwtverify.StatusValid:
	case jwtverify.StatusExpired:
		g.logger.DebugContext(r.Context(), "callback token expired", "path", path)
		return GateDecision{Outcome: GateToLogin, Location: routeaccess.LoginPath}
	default:
		g.logger.ErrorContext(r.Context(), "callback token rejected", "path", path, "error", res.Err)
		return GateDecision{Outcome: GateToLogin, Location: routeaccess.LoginPath}
	}

	if newUser {
		return GateDecision{Outcome: GateToOnboarding, Location: withQuery(routeaccess.OnboardingPath, r.URL.RawQuery)}
	}
	return GateDecision{Outcome: GateToTokenLanding, Location: withQuery(g.landing, r.URL.RawQuery)}
}

// samePath compares paths ignoring one trailing slash.
func samePath(path, want string) bool {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return path == want
}

func (g *Gate) decideProtected(r *http.Request) GateDecision {
	token, ok := bearerToken(r)
	if !ok {
		return GateDecision{Outcome: GateProtectedUnchecked}
	}

	res := g.verify.Verify(token)
	switch res.Status {
	case jwtverify.StatusValid:
	case jwtverify.StatusUnavailable:
		g.warnMissingSecret(r)
		return GateDecision{Outcome: GateFailOpen}
	case jwtverify.StatusExpired:
		g.logger.DebugContext(r.Context(), "bearer token expired", "path", r.URL.Path)
		return GateDecision{Outcome: GateProtectedUnchecked}
	default:
		g.logger.ErrorContext(r.Context(), "bearer token rejected", "path", r.URL.Path, "error", res.Err)
		return GateDecision{Outcome: GateProtectedUnchecked}
	}

	roles := res.Claims.Roles
	if g.table.CanAccessRoute(r.URL.Path, roles) {
		return GateDecision{Outcome: GateProtectedAllowed}
	}
	return GateDecision{Outcome: GateToRoleHome, Location: routeaccess.GetRedirectForRole(roles)}
}

func (g *Gate) warnMissingSecret(r *http.Request) {
	g.missingSecret.Do(func() {
		g.logger.ErrorContext(r.Context(), "JWT secret not configured; gate verification disabled")
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

func withQuery(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}
