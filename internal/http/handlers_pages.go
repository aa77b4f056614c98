package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/routeaccess"
)

// PageHandlers serves the HTML shell for public account pages and role-gated app pages.
type PageHandlers struct {
	Guard    *ViewerGuard
	Table    *routeaccess.Table
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

// Home handles GET /{$}: signed-in browsers go to their active role's landing page.
func (h *PageHandlers) Home(w http.ResponseWriter, r *http.Request) {
	store := mustStore(r)
	if store.AccessToken() == "" {
		http.Redirect(w, r, routeaccess.LoginPath, http.StatusSeeOther)
		return
	}
	if role := store.ActiveRole(); role != "" {
		http.Redirect(w, r, routeaccess.GetRedirectForRole(domainauth.Roles{role}), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, routeaccess.OnboardingPath, http.StatusSeeOther)
}

// Account renders one of the token-driven account pages.
func (h *PageHandlers) Account(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Renderer.Render(w, r, http.StatusOK, Page{
			Name:  name,
			Title: title,
			Token: r.URL.Query().Get("token"),
		})
	}
}

// App handles every other GET. Paths covered by the role table render the app shell behind
// the viewer guard; anything else is a 404.
func (h *PageHandlers) App() http.Handler {
	shell := h.Guard.RequireViewer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Renderer.Render(w, r, http.StatusOK, Page{Name: PageApp, Title: pageTitle(r.URL.Path)})
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Table.IsProtected(r.URL.Path) {
			h.Renderer.RenderError(w, r, apperrors.NotFound("The page you are looking for does not exist."))
			return
		}
		shell.ServeHTTP(w, r)
	})
}

// pageTitle derives a heading from the first path segment: /employer/jobs -> "Employer".
func pageTitle(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if seg == "" {
		return "Home"
	}
	return strings.ToUpper(seg[:1]) + seg[1:]
}
