package ports

// Package ports defines interfaces (hexagonal ports) for the marketplace backend and caches.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"golang.org/x/oauth2"
)

// Credentials is an email/password pair.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput carries a sign-up request.
type RegisterInput struct {
	Email     string           `json:"email"`
	Password  string           `json:"password"`
	FirstName string           `json:"firstName,omitempty"`
	LastName  string           `json:"lastName,omitempty"`
	Roles     domainauth.Roles `json:"roles,omitempty"`
}

// ResetPasswordInput completes a forgot-password flow.
type ResetPasswordInput struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AuthResult is the backend's AuthResponse.
type AuthResult struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         domainauth.User `json:"user"`
	IsNewUser    bool            `json:"isNewUser,omitempty"`
}

// HasTokens reports whether the response carries a token pair worth storing.
func (r AuthResult) HasTokens() bool { return r.AccessToken != "" && r.RefreshToken != "" }

// RefreshResult is the response of POST /auth/refresh. RefreshToken is empty when the
// backend keeps the old one.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// SwitchRoleResult is the backend's SwitchRoleResponse. It carries no refresh token.
type SwitchRoleResult struct {
	AccessToken string          `json:"accessToken"`
	ActiveRole  domainauth.Role `json:"activeRole"`
}

// AuthAPI is the backend's /auth surface. Calls that need a session take a token source.
type AuthAPI interface {
	Register(ctx context.Context, in RegisterInput) (AuthResult, error)
	Login(ctx context.Context, in Credentials) (AuthResult, error)
	SendVerificationEmail(ctx context.Context, email string) error
	ConfirmEmail(ctx context.Context, token string) (AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in ResetPasswordInput) error
	CreatePassword(ctx context.Context, ts oauth2.TokenSource, password string) error
	Logout(ctx context.Context, ts oauth2.TokenSource, refreshToken string) error
	LogoutAllDevices(ctx context.Context, ts oauth2.TokenSource) error
	ActiveSessions(ctx context.Context, ts oauth2.TokenSource) ([]domainauth.ActiveSession, error)
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)
	SwitchRole(ctx context.Context, ts oauth2.TokenSource, role domainauth.Role) (SwitchRoleResult, error)
}
