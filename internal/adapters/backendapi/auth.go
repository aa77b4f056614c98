package backendapi

import (
	"context"
	"net/http"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.AuthAPI = (*Client)(nil)

type emailBody struct {
	Email string `json:"email"`
}

type tokenBody struct {
	Token string `json:"token"`
}

type passwordBody struct {
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type roleBody struct {
	Role domainauth.Role `json:"role"`
}

type sessionsResponse struct {
	Sessions []domainauth.ActiveSession `json:"sessions"`
}

// Register creates an account. The device starts with no backend cookies.
func (c *Client) Register(ctx context.Context, in ports.RegisterInput) (ports.AuthResult, error) {
	c.forgetDevice(ctx)
	var out ports.AuthResult
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: in}, &out)
	return out, err
}

// Login exchanges credentials for a token pair. The device starts with no backend cookies.
func (c *Client) Login(ctx context.Context, in ports.Credentials) (ports.AuthResult, error) {
	c.forgetDevice(ctx)
	var out ports.AuthResult
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: in}, &out)
	return out, err
}

// SendVerificationEmail asks the backend to (re)send the verification mail.
func (c *Client) SendVerificationEmail(ctx context.Context, email string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/verify-email/send", body: emailBody{Email: email}}, nil)
}

// ConfirmEmail redeems a verification token. The backend may sign the user in.
func (c *Client) ConfirmEmail(ctx context.Context, token string) (ports.AuthResult, error) {
	var out ports.AuthResult
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/verify-email/confirm", body: tokenBody{Token: token}}, &out)
	return out, err
}

// ForgotPassword starts a password reset.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/forgot-password", body: emailBody{Email: email}}, nil)
}

// ResetPassword completes a password reset.
func (c *Client) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/reset-password", body: in}, nil)
}

// CreatePassword sets a password on an OAuth-only account.
func (c *Client) CreatePassword(ctx context.Context, ts oauth2.TokenSource, password string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/create-password",
		ts:     ts,
		body:   passwordBody{Password: password},
	}, nil)
}

// Logout ends the current device session on the backend and drops its cookies.
func (c *Client) Logout(ctx context.Context, ts oauth2.TokenSource, refreshToken string) error {
	defer c.forgetDevice(ctx)
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/logout",
		ts:     ts,
		body:   refreshBody{RefreshToken: refreshToken},
	}, nil)
}

// LogoutAllDevices ends every session of the user and drops this device's cookies.
func (c *Client) LogoutAllDevices(ctx context.Context, ts oauth2.TokenSource) error {
	defer c.forgetDevice(ctx)
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/logout-all-devices", ts: ts}, nil)
}

// ActiveSessions lists the user's signed-in devices.
func (c *Client) ActiveSessions(ctx context.Context, ts oauth2.TokenSource) ([]domainauth.ActiveSession, error) {
	var out sessionsResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/sessions", ts: ts}, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (ports.RefreshResult, error) {
	var out ports.RefreshResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   refreshBody{RefreshToken: refreshToken},
	}, &out)
	return out, err
}

// SwitchRole asks the backend to reissue the access token for role.
func (c *Client) SwitchRole(ctx context.Context, ts oauth2.TokenSource, role domainauth.Role) (ports.SwitchRoleResult, error) {
	var out ports.SwitchRoleResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/switch-role",
		ts:     ts,
		body:   roleBody{Role: role},
	}, &out)
	return out, err
}
