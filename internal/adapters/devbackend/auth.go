package devbackend

import (
	"context"
	"sort"
	"strings"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/ports"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

var _ ports.AuthAPI = (*Backend)(nil)

const minPasswordLen = 8

// Register creates an account. New accounts start without roles unless the request names some,
// which sends them through onboarding.
func (b *Backend) Register(ctx context.Context, in ports.RegisterInput) (ports.AuthResult, error) {
	if err := checkContext(ctx); err != nil {
		return ports.AuthResult{}, err
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		return ports.AuthResult{}, apperrors.ValidationField("email", "Enter a valid email.")
	}
	if len(in.Password) < minPasswordLen {
		return ports.AuthResult{}, apperrors.ValidationField("password", "Password must be at least 8 characters.")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byEmail[email]; exists {
		return ports.AuthResult{}, apperrors.Conflict("An account with this email already exists.")
	}
	id, err := randomToken()
	if err != nil {
		return ports.AuthResult{}, err
	}
	acct := &account{
		user: domainauth.User{
			ID:        "usr_" + id[:12],
			Email:     email,
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
			Roles:     in.Roles,
		},
		profiles: make(map[domainauth.Role]profile.Snapshot),
	}
	if acct.user.Roles == nil {
		acct.user.Roles = domainauth.Roles{}
	}
	if err := acct.setPassword(in.Password); err != nil {
		return ports.AuthResult{}, err
	}
	b.accounts[acct.user.ID] = acct
	b.byEmail[email] = acct.user.ID

	if tok, err := b.newOneTime(b.verify, acct.user.ID); err == nil {
		b.logger.InfoContext(ctx, "verification link", "email", email, "path", "/verify-email?token="+tok)
	}
	return b.authResult(acct, "", true)
}

// Login checks the password and issues a token pair.
func (b *Backend) Login(ctx context.Context, in ports.Credentials) (ports.AuthResult, error) {
	if err := checkContext(ctx); err != nil {
		return ports.AuthResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acct, ok := b.accounts[b.byEmail[normalizeEmail(in.Email)]]
	if !ok || acct.hash == nil {
		return ports.AuthResult{}, apperrors.Unauthorized("Invalid email or password.")
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(in.Password)); err != nil {
		return ports.AuthResult{}, apperrors.Unauthorized("Invalid email or password.")
	}
	return b.authResult(acct, acct.user.ActiveRole, false)
}

// SendVerificationEmail logs a fresh verification link. Unknown emails succeed silently.
func (b *Backend) SendVerificationEmail(ctx context.Context, email string) error {
	return b.logOneTime(ctx, email, b.verify, "verification link", "/verify-email?token=")
}

// ConfirmEmail marks the account verified and signs it in.
func (b *Backend) ConfirmEmail(ctx context.Context, token string) (ports.AuthResult, error) {
	if err := checkContext(ctx); err != nil {
		return ports.AuthResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.redeem(b.verify, token)
	if !ok {
		return ports.AuthResult{}, apperrors.ValidationField("token", "This verification link is invalid or has expired.")
	}
	acct.user.EmailVerified = true
	return b.authResult(acct, acct.user.ActiveRole, false)
}

// ForgotPassword logs a reset link. Unknown emails succeed silently.
func (b *Backend) ForgotPassword(ctx context.Context, email string) error {
	return b.logOneTime(ctx, email, b.reset, "password reset link", "/reset-password?token=")
}

// ResetPassword sets a new password and revokes every refresh token of the account.
func (b *Backend) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if len(in.Password) < minPasswordLen {
		return apperrors.ValidationField("password", "Password must be at least 8 characters.")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.redeem(b.reset, in.Token)
	if !ok {
		return apperrors.ValidationField("token", "This reset link is invalid or has expired.")
	}
	if err := acct.setPassword(in.Password); err != nil {
		return err
	}
	b.revokeAll(acct.user.ID)
	return nil
}

// CreatePassword adds a password to an account that signed up through OAuth.
func (b *Backend) CreatePassword(ctx context.Context, ts oauth2.TokenSource, password string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	acct, _, err := b.authenticate(ts)
	if err != nil {
		return err
	}
	if len(password) < minPasswordLen {
		return apperrors.ValidationField("password", "Password must be at least 8 characters.")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if acct.hash != nil {
		return apperrors.Conflict("This account already has a password.")
	}
	return acct.setPassword(password)
}

// Logout revokes one refresh token. Revoking an unknown token is not an error.
func (b *Backend) Logout(ctx context.Context, ts oauth2.TokenSource, refreshToken string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	acct, _, err := b.authenticate(ts)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.refresh[refreshToken]; ok && g.userID == acct.user.ID {
		delete(b.refresh, refreshToken)
	}
	return nil
}

// LogoutAllDevices revokes every refresh token of the caller.
func (b *Backend) LogoutAllDevices(ctx context.Context, ts oauth2.TokenSource) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	acct, _, err := b.authenticate(ts)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revokeAll(acct.user.ID)
	return nil
}

// ActiveSessions lists the caller's live refresh grants, newest activity first.
func (b *Backend) ActiveSessions(ctx context.Context, ts oauth2.TokenSource) ([]domainauth.ActiveSession, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	acct, _, err := b.authenticate(ts)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	var out []domainauth.ActiveSession
	for tok, g := range b.refresh {
		if g.userID != acct.user.ID || now.After(g.expiresAt) {
			continue
		}
		out = append(out, domainauth.ActiveSession{
			ID:           tok[:8],
			CreatedAt:    g.createdAt,
			LastActiveAt: g.usedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

// Refresh rotates the refresh token and signs a new access token for the stored active role.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (ports.RefreshResult, error) {
	if err := checkContext(ctx); err != nil {
		return ports.RefreshResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.refresh[refreshToken]
	delete(b.refresh, refreshToken)
	if !ok || b.now().After(g.expiresAt) {
		return ports.RefreshResult{}, apperrors.Unauthorized("Your session has expired. Please sign in again.")
	}
	acct, ok := b.accounts[g.userID]
	if !ok {
		return ports.RefreshResult{}, apperrors.Unauthorized("Your account no longer exists.")
	}
	access, next, err := b.issue(acct, acct.user.ActiveRole)
	if err != nil {
		return ports.RefreshResult{}, err
	}
	rotated := b.refresh[next]
	rotated.createdAt = g.createdAt
	b.refresh[next] = rotated
	return ports.RefreshResult{AccessToken: access, RefreshToken: next}, nil
}

// SwitchRole re-signs the access token with role first. The role must already be held.
func (b *Backend) SwitchRole(ctx context.Context, ts oauth2.TokenSource, role domainauth.Role) (ports.SwitchRoleResult, error) {
	if err := checkContext(ctx); err != nil {
		return ports.SwitchRoleResult{}, err
	}
	acct, _, err := b.authenticate(ts)
	if err != nil {
		return ports.SwitchRoleResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !role.Valid() || !acct.user.Roles.Contains(role) {
		return ports.SwitchRoleResult{}, apperrors.Forbidden("You do not have the " + string(role) + " role.")
	}
	acct.user.ActiveRole = role
	access, err := b.sign(acct, role)
	if err != nil {
		return ports.SwitchRoleResult{}, err
	}
	return ports.SwitchRoleResult{AccessToken: access, ActiveRole: role}, nil
}

// authResult issues tokens and packages the account. Callers hold b.mu.
func (b *Backend) authResult(acct *account, active domainauth.Role, isNew bool) (ports.AuthResult, error) {
	access, refresh, err := b.issue(acct, active)
	if err != nil {
		return ports.AuthResult{}, err
	}
	user := acct.user
	user.Roles = user.Roles.WithPrimary(active)
	return ports.AuthResult{AccessToken: access, RefreshToken: refresh, User: user, IsNewUser: isNew}, nil
}

func (b *Backend) logOneTime(ctx context.Context, email string, into map[string]oneTimeToken, msg, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	email = normalizeEmail(email)
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.byEmail[email]
	if !ok {
		return nil
	}
	tok, err := b.newOneTime(into, id)
	if err != nil {
		return err
	}
	b.logger.InfoContext(ctx, msg, "email", email, "path", path+tok)
	return nil
}

// revokeAll drops every refresh grant of userID. Callers hold b.mu.
func (b *Backend) revokeAll(userID string) {
	for tok, g := range b.refresh {
		if g.userID == userID {
			delete(b.refresh, tok)
		}
	}
}
