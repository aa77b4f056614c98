package httpx

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/service"
)

// Page is the data every shell template receives.
type Page struct {
	Name    string
	Title   string
	Message string
	// Path is the request URI, used as redirect_uri by forms on the page.
	Path        string
	RedirectURI string
	// Token carries a one-time token from the URL (password reset, email verification).
	Token     string
	CSRFToken string
	Viewer    *service.Viewer
	Offer     *RoleOffer
}

// TemplateRenderer renders the HTML shell.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS // root containing layout.tmpl and pages/ (required)
	Logger     *slog.Logger
}

// NewTemplateRenderer parses the layout and page templates.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &TemplateRenderer{logger: logger}
	t, err := template.New("root").Funcs(r.funcs()).ParseFS(cfg.TemplateFS, "*.tmpl", "pages/*.tmpl")
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err), slog.String("phase", "initialization"))
		return nil, err
	}
	r.t = t
	return r, nil
}

// Render writes the full page with status. Path and CSRFToken are filled from r when unset.
func (tr *TemplateRenderer) Render(w http.ResponseWriter, r *http.Request, status int, p Page) {
	if p.Path == "" {
		p.Path = r.URL.RequestURI()
	}
	if p.CSRFToken == "" {
		p.CSRFToken = CSRFToken(r)
	}
	if p.Viewer == nil {
		if v, ok := ViewerFromContext(r.Context()); ok {
			p.Viewer = &v
		}
	}

	var buf bytes.Buffer
	if err := tr.t.ExecuteTemplate(&buf, "layout", p); err != nil {
		tr.logger.ErrorContext(r.Context(), "template execution failed",
			slog.String("page", p.Name),
			slog.Any("error", err),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		tr.logger.DebugContext(r.Context(), "write rendered page", slog.String("page", p.Name), slog.Any("error", err))
	}
}

// RenderError renders the error page with a status and message derived from err.
func (tr *TemplateRenderer) RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForCode(apperrors.GetCode(err))
	tr.Render(w, r, status, Page{
		Name:    PageError,
		Title:   http.StatusText(status),
		Message: apperrors.UserMessage(err, genericMessage(status)),
	})
}

func (tr *TemplateRenderer) funcs() template.FuncMap {
	return template.FuncMap{
		"renderSection": func(page string, data any) (template.HTML, error) {
			var buf bytes.Buffer
			if err := tr.t.ExecuteTemplate(&buf, ContentTemplateFor(page), data); err != nil {
				return "", err
			}
			// #nosec G203 - rendered by our own html/template set; values were escaped above.
			return template.HTML(buf.String()), nil
		},
		"roleLabel":  roleLabel,
		"landingFor": func(role domainauth.Role) string { return routeaccess.GetRedirectForRole(domainauth.Roles{role}) },
	}
}

func roleLabel(role domainauth.Role) string {
	if role == "" {
		return "Guest"
	}
	s := string(role)
	return strings.ToUpper(s[:1]) + s[1:]
}
