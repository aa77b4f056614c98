package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/service"
)

// RoleOffer describes a page the viewer could open after switching to one of their other roles.
type RoleOffer struct {
	Path          string           `json:"path"`
	ActiveRole    domainauth.Role  `json:"activeRole"`
	RequiredRoles domainauth.Roles `json:"requiredRoles"`
	Offer         domainauth.Role  `json:"offer"`
	Candidates    domainauth.Roles `json:"candidates"`
	Viewer        *service.Viewer  `json:"-"`
}

// ViewerGuard enforces the role table for signed-in pages.
type ViewerGuard struct {
	Viewer   *service.ViewerService
	Table    *routeaccess.Table
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

// RequireViewer resolves the viewer and checks the active role against the route table:
//   - no session: redirect to /login with the current path as redirect_uri (401 for APIs);
//   - active role allowed: continue with the viewer in context;
//   - another held role allowed: answer 409 with a role-switch offer;
//   - no held role allowed: redirect to the landing page of the viewer's roles.
func (g *ViewerGuard) RequireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, ok := StoreFromContext(r.Context())
		if !ok || store.AccessToken() == "" {
			g.unauthenticated(w, r)
			return
		}

		v, err := g.Viewer.Current(r.Context(), store)
		if err != nil {
			if apperrors.IsUnauthorized(err) {
				g.unauthenticated(w, r)
				return
			}
			g.logger().ErrorContext(r.Context(), "resolve viewer", "path", r.URL.Path, "error", err)
			g.fail(w, r, err)
			return
		}

		path := r.URL.Path
		rule, matched := g.Table.Match(path)
		if !matched || g.Table.CanAccessRoute(path, domainauth.Roles{v.ActiveRole}) {
			next.ServeHTTP(w, r.WithContext(SetViewerInContext(r.Context(), v)))
			return
		}

		var candidates domainauth.Roles
		for _, held := range v.Roles {
			if held != v.ActiveRole && g.Table.CanAccessRoute(path, domainauth.Roles{held}) {
				candidates = append(candidates, held)
			}
		}
		if len(candidates) == 0 {
			target := routeaccess.GetRedirectForRole(v.Roles)
			if !wantsHTML(r) {
				WriteAppError(w, apperrors.Forbidden("Your roles do not allow access to this page."))
				return
			}
			navigate(w, r, target, http.StatusSeeOther)
			return
		}

		g.offerSwitch(w, r, RoleOffer{
			Path:          r.URL.RequestURI(),
			ActiveRole:    v.ActiveRole,
			RequiredRoles: rule.Roles,
			Offer:         candidates.Primary(),
			Candidates:    candidates,
			Viewer:        &v,
		})
	})
}

// RequireSession rejects requests from devices without an access token.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsSignedIn(r.Context()) {
			WriteAppError(w, service.ErrNoSession)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *ViewerGuard) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if !wantsHTML(r) {
		WriteAppError(w, service.ErrNoSession)
		return
	}
	navigate(w, r, loginRedirect(routeaccess.LoginPath, r), http.StatusSeeOther)
}

func (g *ViewerGuard) offerSwitch(w http.ResponseWriter, r *http.Request, offer RoleOffer) {
	if !wantsHTML(r) {
		WriteJSON(w, http.StatusConflict, map[string]any{
			"error":   "role_switch_required",
			"message": "Switch to your " + string(offer.Offer) + " role to open this page.",
			"offer":   offer,
		})
		return
	}
	if IsHTMX(r) {
		SetHXTrigger(w, "roleSwitchRequired", offer)
	}
	g.Renderer.Render(w, r, http.StatusConflict, Page{
		Name:   PageRoleSwitch,
		Title:  "Switch role",
		Viewer: offer.Viewer,
		Offer:  &offer,
	})
}

func (g *ViewerGuard) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !wantsHTML(r) {
		WriteAppError(w, err)
		return
	}
	g.Renderer.RenderError(w, r, err)
}

func (g *ViewerGuard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
