package httpx

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/http/validation"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/service"
	"github.com/target/talentgate/internal/tokenstore"
)

// AuthHandlers serves the /auth endpoints. JSON callers get JSON; plain form posts from the
// shell pages get redirects or a re-rendered page.
type AuthHandlers struct {
	Auth     *service.AuthService
	Viewer   *service.ViewerService
	Switcher *service.RoleSwitcher
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// signInResponse is returned by every call that signs the device in.
type signInResponse struct {
	User       domainauth.User `json:"user"`
	ActiveRole domainauth.Role `json:"activeRole,omitempty"`
	IsNewUser  bool            `json:"isNewUser"`
	RedirectTo string          `json:"redirectTo"`
}

type statusResponse struct {
	Status     string `json:"status"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ports.Credentials
		RedirectURI string `json:"redirect_uri"`
	}
	if !DecodeBody(w, r, &in) {
		return
	}
	store := mustStore(r)
	out, err := h.Auth.Login(r.Context(), store, in.Credentials)
	if err != nil {
		h.formOrJSONError(w, r, err, Page{Name: PageLogin, Title: "Sign in", RedirectURI: safeRedirectPath(in.RedirectURI)})
		return
	}
	h.signedIn(w, r, out, in.RedirectURI)
}

// Register handles POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var in ports.RegisterInput
	if !DecodeBody(w, r, &in) {
		return
	}
	page := Page{Name: PageSignup, Title: "Create your account"}
	if err := validation.New().Validate("email", in.Email, validation.Email("Email")).Err(); err != nil {
		h.formOrJSONError(w, r, err, page)
		return
	}
	out, err := h.Auth.Register(r.Context(), mustStore(r), in)
	if err != nil {
		h.formOrJSONError(w, r, err, page)
		return
	}
	h.signedIn(w, r, out, "")
}

// Refresh handles POST /auth/refresh. Tokens stay server-side; the response only confirms.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Auth.RefreshAuthToken(r.Context(), mustStore(r)); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, statusResponse{Status: "refreshed"})
}

// SendVerification handles POST /auth/verify-email/send.
func (h *AuthHandlers) SendVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !DecodeBody(w, r, &in) {
		return
	}
	if err := h.Auth.VerifyEmailSend(r.Context(), in.Email); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, statusResponse{Status: "sent"})
}

// ConfirmVerification handles POST /auth/verify-email/confirm.
func (h *AuthHandlers) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if !DecodeBody(w, r, &in) {
		return
	}
	store := mustStore(r)
	out, err := h.Auth.VerifyEmailConfirm(r.Context(), store, in.Token)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if store.AccessToken() == "" {
		WriteJSON(w, http.StatusOK, signInResponse{User: out.User, RedirectTo: routeaccess.LoginPath})
		return
	}
	h.signedIn(w, r, out, "")
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *AuthHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !DecodeBody(w, r, &in) {
		return
	}
	if err := h.Auth.ForgotPassword(r.Context(), in.Email); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, statusResponse{Status: "sent"})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in ports.ResetPasswordInput
	if !DecodeBody(w, r, &in) {
		return
	}
	if err := h.Auth.ResetPassword(r.Context(), in); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, statusResponse{Status: "password_reset", RedirectTo: routeaccess.LoginPath})
}

// CreatePassword handles POST /auth/create-password.
func (h *AuthHandlers) CreatePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if !DecodeBody(w, r, &in) {
		return
	}
	if err := h.Auth.CreatePassword(r.Context(), mustStore(r), in.Password); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, statusResponse{Status: "password_created"})
}

// Logout handles POST /auth/logout. Local state is cleared even when the backend call fails.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Viewer.Logout(r.Context(), mustStore(r)); err != nil {
		h.logger().WarnContext(r.Context(), "logout incomplete", "error", err)
	}
	h.signedOut(w, r)
}

// LogoutAllDevices handles POST /auth/logout-all-devices.
func (h *AuthHandlers) LogoutAllDevices(w http.ResponseWriter, r *http.Request) {
	store := mustStore(r)
	h.Viewer.InvalidateUser(r.Context(), store)
	if err := h.Auth.LogoutAllDevices(r.Context(), store); err != nil {
		h.logger().WarnContext(r.Context(), "logout all devices incomplete", "error", err)
	}
	h.signedOut(w, r)
}

// Sessions handles GET /auth/sessions.
func (h *AuthHandlers) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Auth.ActiveSessions(r.Context(), mustStore(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if sessions == nil {
		sessions = []domainauth.ActiveSession{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// SwitchRole handles POST /auth/switch-role with {role, redirect_uri}.
// The new token is stored before the response, so the reload that follows sees it.
func (h *AuthHandlers) SwitchRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Role        string `json:"role"`
		RedirectURI string `json:"redirect_uri"`
	}
	if !DecodeBody(w, r, &in) {
		return
	}

	returnTo := safeRedirectPath(in.RedirectURI)
	if returnTo == "" {
		returnTo = safeRedirectFromURL(r.Header.Get("Referer"), r.Host)
	}
	res, err := h.Switcher.Confirm(r.Context(), mustStore(r), service.SwitchRequest{
		Role:     domainauth.Role(strings.TrimSpace(in.Role)),
		ReturnTo: returnTo,
	})
	if err != nil {
		var se *service.SwitchError
		msg := service.SwitchRoleFailedMessage
		if errors.As(err, &se) {
			msg = se.Message
		}
		status := statusForCode(apperrors.GetCode(err))
		if isFormPost(r) || IsHTMX(r) {
			h.Renderer.Render(w, r, status, Page{Name: PageError, Title: "Role switch failed", Message: msg})
			return
		}
		WriteJSON(w, status, errorBody{Error: "role_switch_failed", Message: msg})
		return
	}

	if isFormPost(r) || IsHTMX(r) {
		navigate(w, r, res.Target, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"activeRole": res.ActiveRole,
		"reload":     res.Reload,
		"redirectTo": res.Target,
	})
}

// OAuthSuccess handles GET /auth/oauth-success, the token-landing page. It moves the tokens
// from the URL into the device store and redirects to a clean URL.
func (h *AuthHandlers) OAuthSuccess(w http.ResponseWriter, r *http.Request) {
	cb := callbackFromQuery(r.URL.Query())
	out, err := h.Auth.CompleteOAuth(r.Context(), mustStore(r), cb)
	if err != nil {
		h.logger().InfoContext(r.Context(), "oauth landing rejected", "error", err)
		http.Redirect(w, r, routeaccess.LoginPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, landingAfterSignIn(out, ""), http.StatusSeeOther)
}

// Onboarding handles GET /onboarding. A new user arriving from OAuth still carries tokens on
// the URL; they are stored and the browser is sent back to the clean URL.
func (h *AuthHandlers) Onboarding(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	store := mustStore(r)
	if q.Get("accessToken") != "" {
		if _, err := h.Auth.CompleteOAuth(r.Context(), store, callbackFromQuery(q)); err != nil {
			h.logger().InfoContext(r.Context(), "onboarding tokens rejected", "error", err)
			http.Redirect(w, r, routeaccess.LoginPath, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, routeaccess.OnboardingPath, http.StatusSeeOther)
		return
	}

	page := Page{Name: PageOnboarding, Title: "Welcome"}
	if store.AccessToken() != "" && h.Viewer != nil {
		if v, err := h.Viewer.Current(r.Context(), store); err == nil {
			page.Viewer = &v
		}
	}
	h.Renderer.Render(w, r, http.StatusOK, page)
}

// Status handles GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	store := mustStore(r)
	if store.AccessToken() == "" {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	v, err := h.Viewer.Current(r.Context(), store)
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		// Tokens are held but the backend could not confirm them right now.
		WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"verified":      false,
			"activeRole":    store.ActiveRole(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"verified":      true,
		"user":          v.User,
		"roles":         v.Roles,
		"activeRole":    v.ActiveRole,
	})
}

// LoginPage handles GET /login.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, r, http.StatusOK, Page{
		Name:        PageLogin,
		Title:       "Sign in",
		RedirectURI: safeRedirectPath(r.URL.Query().Get("redirect_uri")),
	})
}

// SignupPage handles GET /signup.
func (h *AuthHandlers) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, r, http.StatusOK, Page{Name: PageSignup, Title: "Create your account"})
}

func (h *AuthHandlers) signedIn(w http.ResponseWriter, r *http.Request, out service.AuthOutcome, redirectURI string) {
	if out.Warning != nil {
		h.logger().WarnContext(r.Context(), "session not persisted", "error", out.Warning)
	}
	target := landingAfterSignIn(out, redirectURI)
	if isFormPost(r) {
		navigate(w, r, target, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, signInResponse{
		User:       out.User,
		ActiveRole: out.ActiveRole,
		IsNewUser:  out.IsNewUser,
		RedirectTo: target,
	})
}

func (h *AuthHandlers) signedOut(w http.ResponseWriter, r *http.Request) {
	if isFormPost(r) || IsHTMX(r) {
		navigate(w, r, routeaccess.LoginPath, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, statusResponse{Status: "signed_out", RedirectTo: routeaccess.LoginPath})
}

// formOrJSONError re-renders page with the error message for form posts.
func (h *AuthHandlers) formOrJSONError(w http.ResponseWriter, r *http.Request, err error, page Page) {
	if !isFormPost(r) {
		WriteAppError(w, err)
		return
	}
	status := statusForCode(apperrors.GetCode(err))
	page.Message = apperrors.UserMessage(err, genericMessage(status))
	h.Renderer.Render(w, r, status, page)
}

// landingAfterSignIn picks where a freshly signed-in browser goes: onboarding for new or
// role-less users, then a safe redirect_uri, then the active role's landing page.
func landingAfterSignIn(out service.AuthOutcome, redirectURI string) string {
	if out.IsNewUser || out.ActiveRole == "" {
		return routeaccess.OnboardingPath
	}
	if target := safeRedirectPath(redirectURI); target != "" {
		return target
	}
	return routeaccess.GetRedirectForRole(domainauth.Roles{out.ActiveRole})
}

func callbackFromQuery(q url.Values) service.OAuthCallback {
	return service.OAuthCallback{
		AccessToken:  q.Get("accessToken"),
		RefreshToken: q.Get("refreshToken"),
		UserID:       q.Get("userId"),
		Roles:        domainauth.ParseRoleList(q.Get("roles")),
		IsNewUser:    q.Get("isNewUser") == "true",
	}
}

func isFormPost(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// mustStore returns the store placed by the Device middleware. Routes are only mounted
// behind it, so a missing store is a wiring bug.
func mustStore(r *http.Request) *tokenstore.Store {
	s, ok := StoreFromContext(r.Context())
	if !ok {
		panic("httpx: token store missing from request context")
	}
	return s
}
