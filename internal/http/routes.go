package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	talentgate "github.com/target/talentgate"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/service"
	"github.com/target/talentgate/internal/tokenstore"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth     *service.AuthService
	Viewer   *service.ViewerService
	Switcher *service.RoleSwitcher
	Table    *routeaccess.Table
	Gate     *Gate
	Tokens   tokenstore.Backend
	// Cache backs the readiness probe (optional).
	Cache ports.CacheRepository
	// Renderer defaults to the embedded templates, or TemplateDir when set.
	Renderer    *TemplateRenderer
	TemplateDir string

	CookieDomain  string
	SecureCookies bool
	// CSRF enables double-submit protection on unsafe methods.
	CSRF bool
	// Compression is applied when non-nil.
	Compression *CompressionConfig
	// Extra mounts additional handlers by ServeMux pattern (e.g. the dev OAuth simulator).
	Extra  map[string]http.Handler
	Logger *slog.Logger
}

// NewRouter wires the BFF routes behind the middleware stack:
// Recover, Logging, Compression, Gate, Device, CSRF.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	table := services.Table
	if table == nil {
		table = routeaccess.Default()
	}
	renderer := services.Renderer
	if renderer == nil {
		var err error
		if renderer, err = defaultRenderer(services.TemplateDir, logger); err != nil {
			return nil, err
		}
	}
	gate := services.Gate
	if gate == nil {
		gate = NewGate(GateConfig{Table: table, Logger: logger})
	}

	guard := &ViewerGuard{Viewer: services.Viewer, Table: table, Renderer: renderer, Logger: logger}
	authHandlers := &AuthHandlers{
		Auth:     services.Auth,
		Viewer:   services.Viewer,
		Switcher: services.Switcher,
		Renderer: renderer,
		Logger:   logger,
	}
	viewerHandlers := &ViewerHandlers{Viewer: services.Viewer, Logger: logger}
	pages := &PageHandlers{Guard: guard, Table: table, Renderer: renderer, Logger: logger}

	mux := http.NewServeMux()
	registerHealthRoutes(mux, services.Cache, logger)
	registerAuthRoutes(mux, authHandlers)
	registerAPIRoutes(mux, viewerHandlers)
	registerPageRoutes(mux, pages, authHandlers)
	for pattern, h := range services.Extra {
		mux.Handle(pattern, h)
	}

	var compression Middleware
	if services.Compression != nil {
		compression = Compression(*services.Compression)
	}
	var csrf Middleware
	if services.CSRF {
		csrf = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})
	}

	return Chain(mux,
		Recover(logger),
		Logging(logger),
		compression,
		gate.Middleware,
		Device(DeviceConfig{
			Backend:       services.Tokens,
			CookieDomain:  services.CookieDomain,
			SecureCookies: services.SecureCookies,
			Logger:        logger,
		}),
		csrf,
	), nil
}

func defaultRenderer(dir string, logger *slog.Logger) (*TemplateRenderer, error) {
	var templateFS fs.FS
	if dir != "" {
		templateFS = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(talentgate.TemplateFS, "web/templates")
		if err != nil {
			return nil, err
		}
		templateFS = sub
	}
	return NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
}

func registerHealthRoutes(mux *http.ServeMux, cache ports.CacheRepository, logger *slog.Logger) {
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.Handle("GET /readyz", readyHandler(cache, logger))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.HandleFunc("POST /auth/verify-email/send", h.SendVerification)
	mux.HandleFunc("POST /auth/verify-email/confirm", h.ConfirmVerification)
	mux.HandleFunc("POST /auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", h.ResetPassword)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("GET "+routeaccess.DefaultTokenLandingPath, h.OAuthSuccess)

	mux.Handle("POST /auth/create-password", RequireSession(http.HandlerFunc(h.CreatePassword)))
	mux.Handle("POST /auth/logout-all-devices", RequireSession(http.HandlerFunc(h.LogoutAllDevices)))
	mux.Handle("GET /auth/sessions", RequireSession(http.HandlerFunc(h.Sessions)))
	mux.Handle("POST /auth/switch-role", RequireSession(http.HandlerFunc(h.SwitchRole)))
}

func registerAPIRoutes(mux *http.ServeMux, h *ViewerHandlers) {
	mux.Handle("GET /api/me", RequireSession(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/profile", RequireSession(http.HandlerFunc(h.GetProfile)))
	mux.Handle("PUT /api/profile", RequireSession(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("POST /api/profile/image", RequireSession(http.HandlerFunc(h.UploadImage)))
}

func registerPageRoutes(mux *http.ServeMux, p *PageHandlers, auth *AuthHandlers) {
	mux.HandleFunc("GET /{$}", p.Home)
	mux.HandleFunc("GET "+routeaccess.LoginPath, auth.LoginPage)
	mux.HandleFunc("GET /signup", auth.SignupPage)
	mux.HandleFunc("GET "+routeaccess.OnboardingPath, auth.Onboarding)
	mux.HandleFunc("GET /forgot-password", p.Account(PageForgotPassword, "Reset your password"))
	mux.HandleFunc("GET /reset-password", p.Account(PageResetPassword, "Choose a new password"))
	mux.HandleFunc("GET /verify-email", p.Account(PageVerifyEmail, "Verify your email"))
	mux.Handle("GET /create-password", RequireSession(p.Account(PageCreatePassword, "Create a password")))
	mux.Handle("GET /", p.App())
}
