package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/observability/metrics"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/tokenstore"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew is how close to expiry an access token is refreshed before use.
const DefaultRefreshSkew = 30 * time.Second

// ErrNoSession is returned when an operation needs tokens the device does not have.
var ErrNoSession = apperrors.Unauthorized("Please sign in to continue.")

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	API ports.AuthAPI
	// Verifier is optional; it lets CompleteOAuth read roles from the token.
	Verifier    *jwtverify.Verifier
	Metrics     statsd.Sink
	Logger      *slog.Logger
	RefreshSkew time.Duration
	Now         func() time.Time
}

// AuthService runs the backend auth flows and keeps the device token store in step with them.
// Every backend response that carries a token pair is stored before the call returns.
type AuthService struct {
	api      ports.AuthAPI
	verifier *jwtverify.Verifier
	metrics  statsd.Sink
	logger   *slog.Logger
	skew     time.Duration
	now      func() time.Time
	refresh  singleflight.Group
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = statsd.Discard
	}
	skew := opts.RefreshSkew
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		api:      opts.API,
		verifier: opts.Verifier,
		metrics:  sink,
		logger:   logger.With("component", "auth_service"),
		skew:     skew,
		now:      now,
	}
}

// AuthOutcome summarises a sign-in style call.
type AuthOutcome struct {
	User       domainauth.User
	ActiveRole domainauth.Role
	IsNewUser  bool
	// Warning is set when the tokens are live for this request but could not be persisted.
	Warning error
}

// Register creates an account and stores the returned tokens.
func (s *AuthService) Register(ctx context.Context, store *tokenstore.Store, in ports.RegisterInput) (AuthOutcome, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		return AuthOutcome{}, apperrors.ValidationField("email", "Email is required.")
	}
	if in.Password == "" {
		return AuthOutcome{}, apperrors.ValidationField("password", "Password is required.")
	}
	res, err := s.api.Register(ctx, in)
	s.count("register", err)
	if err != nil {
		return AuthOutcome{}, err
	}
	return s.storeAuthResult(ctx, store, res)
}

// Login signs in with email and password.
func (s *AuthService) Login(ctx context.Context, store *tokenstore.Store, in ports.Credentials) (AuthOutcome, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" {
		return AuthOutcome{}, apperrors.Validation("Email and password are required.")
	}
	res, err := s.api.Login(ctx, in)
	s.count("login", err)
	if err != nil {
		return AuthOutcome{}, err
	}
	return s.storeAuthResult(ctx, store, res)
}

// VerifyEmailSend asks the backend to send a verification mail.
func (s *AuthService) VerifyEmailSend(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "Email is required.")
	}
	return s.api.SendVerificationEmail(ctx, email)
}

// VerifyEmailConfirm redeems a verification token. When the backend signs the user in
// the tokens are stored.
func (s *AuthService) VerifyEmailConfirm(ctx context.Context, store *tokenstore.Store, token string) (AuthOutcome, error) {
	if strings.TrimSpace(token) == "" {
		return AuthOutcome{}, apperrors.ValidationField("token", "Verification token is required.")
	}
	res, err := s.api.ConfirmEmail(ctx, token)
	if err != nil {
		return AuthOutcome{}, err
	}
	if !res.HasTokens() {
		return AuthOutcome{User: res.User}, nil
	}
	return s.storeAuthResult(ctx, store, res)
}

// ForgotPassword starts a password reset.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "Email is required.")
	}
	return s.api.ForgotPassword(ctx, email)
}

// ResetPassword completes a password reset.
func (s *AuthService) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) error {
	if in.Token == "" || in.Password == "" {
		return apperrors.Validation("Reset token and new password are required.")
	}
	return s.api.ResetPassword(ctx, in)
}

// CreatePassword adds a password to the signed-in account.
func (s *AuthService) CreatePassword(ctx context.Context, store *tokenstore.Store, password string) error {
	if password == "" {
		return apperrors.ValidationField("password", "Password is required.")
	}
	if store.AccessToken() == "" {
		return ErrNoSession
	}
	return s.api.CreatePassword(ctx, s.TokenSource(ctx, store), password)
}

// ActiveSessions lists the user's signed-in devices.
func (s *AuthService) ActiveSessions(ctx context.Context, store *tokenstore.Store) ([]domainauth.ActiveSession, error) {
	if store.AccessToken() == "" {
		return nil, ErrNoSession
	}
	return s.api.ActiveSessions(ctx, s.TokenSource(ctx, store))
}

// Logout ends the device session on the backend and always clears local state,
// even when the backend call fails. The returned error is informational.
func (s *AuthService) Logout(ctx context.Context, store *tokenstore.Store) (err error) {
	snap := store.Snapshot()
	defer func() { err = errors.Join(err, s.clearLocal(ctx, store)) }()

	if snap.AccessToken == "" {
		return nil
	}
	err = s.api.Logout(ctx, bearer(snap.AccessToken), snap.RefreshToken)
	s.count("logout", err)
	if err != nil {
		s.logger.WarnContext(ctx, "backend logout failed", "device_id", snap.DeviceID, "error", err)
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// LogoutAllDevices ends every session of the user and clears local state regardless of outcome.
func (s *AuthService) LogoutAllDevices(ctx context.Context, store *tokenstore.Store) (err error) {
	snap := store.Snapshot()
	defer func() { err = errors.Join(err, s.clearLocal(ctx, store)) }()

	if snap.AccessToken == "" {
		return nil
	}
	err = s.api.LogoutAllDevices(ctx, bearer(snap.AccessToken))
	s.count("logout_all", err)
	if err != nil {
		s.logger.WarnContext(ctx, "backend logout-all failed", "device_id", snap.DeviceID, "error", err)
		return fmt.Errorf("logout all devices: %w", err)
	}
	return nil
}

func (s *AuthService) clearLocal(ctx context.Context, store *tokenstore.Store) error {
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clear local session: %w", err)
	}
	return nil
}

// RefreshAuthToken trades the stored refresh token for a new access token.
// On failure the stored tuple is unchanged. The refresh token is replaced only when the
// backend sends a new one.
func (s *AuthService) RefreshAuthToken(ctx context.Context, store *tokenstore.Store) (string, error) {
	v, err, _ := s.refresh.Do(store.DeviceID(), func() (any, error) {
		return s.refreshOnce(ctx, store)
	})
	if err != nil {
		return "", err
	}
	tok, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("refresh %s: unexpected value type %T", store.DeviceID(), v)
	}
	return tok, nil
}

func (s *AuthService) refreshOnce(ctx context.Context, store *tokenstore.Store) (string, error) {
	prev := store.Snapshot()
	if prev.RefreshToken == "" {
		return "", ErrNoSession
	}

	res, err := s.api.Refresh(ctx, prev.RefreshToken)
	s.count("refresh", err)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if res.AccessToken == "" {
		return "", apperrors.Wrap(errors.New("refresh response has no access token"), apperrors.ErrCodeUpstream, "")
	}

	refreshToken := prev.RefreshToken
	if res.RefreshToken != "" {
		refreshToken = res.RefreshToken
	}
	// A storage warning is logged by the store; the new token is still usable.
	_ = store.StoreTokens(ctx, domainauth.Tokens{
		AccessToken:  res.AccessToken,
		RefreshToken: refreshToken,
		UserID:       prev.UserID,
	})
	return res.AccessToken, nil
}

// SwitchOutcome reports a completed role switch.
type SwitchOutcome struct {
	ActiveRole domainauth.Role
	Warning    error
}

// SwitchRole asks the backend for a token scoped to role. The backend returns only a new
// access token, so the stored refresh token and user id are carried over. If the call fails
// nothing local changes: the request is sent with the access token held when the call
// started and never triggers a refresh.
func (s *AuthService) SwitchRole(ctx context.Context, store *tokenstore.Store, role domainauth.Role) (SwitchOutcome, error) {
	parsed, err := domainauth.ParseRole(string(role))
	if err != nil {
		return SwitchOutcome{}, apperrors.ValidationField("role", "Unknown role.")
	}
	snap := store.Snapshot()
	if snap.AccessToken == "" {
		return SwitchOutcome{}, ErrNoSession
	}

	res, err := s.api.SwitchRole(ctx, bearer(snap.AccessToken), parsed)
	s.count("switch_role", err)
	if err != nil {
		return SwitchOutcome{}, err
	}
	if res.AccessToken == "" {
		return SwitchOutcome{}, apperrors.Wrap(errors.New("switch-role response has no access token"), apperrors.ErrCodeUpstream, "")
	}
	active := res.ActiveRole
	if active == "" {
		active = parsed
	}

	// Read after the call: a concurrent request may have rotated the refresh token.
	cur := store.Snapshot()
	warn := store.StoreTokens(ctx, domainauth.Tokens{
		AccessToken:  res.AccessToken,
		RefreshToken: cur.RefreshToken,
		UserID:       cur.UserID,
		ActiveRole:   active,
	})
	s.logger.InfoContext(ctx, "active role switched", "user_id", cur.UserID, "role", active)
	return SwitchOutcome{ActiveRole: active, Warning: warn}, nil
}

// OAuthCallback carries the token parameters the backend puts on the landing URL.
type OAuthCallback struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Roles        domainauth.Roles
	IsNewUser    bool
}

// CompleteOAuth stores tokens delivered on the URL after an OAuth round trip.
// When a verifier is configured the access token must verify; roles and user id missing
// from the URL are then read from its claims.
func (s *AuthService) CompleteOAuth(ctx context.Context, store *tokenstore.Store, cb OAuthCallback) (AuthOutcome, error) {
	if cb.AccessToken == "" {
		return AuthOutcome{}, apperrors.Validation("Missing access token.")
	}

	roles := cb.Roles
	userID := cb.UserID
	if s.verifier.Available() {
		res := s.verifier.Verify(cb.AccessToken)
		if !res.Valid() {
			s.count("oauth", res.Err)
			return AuthOutcome{}, apperrors.Wrap(res.Err, apperrors.ErrCodeUnauthorized, "Your sign-in link is invalid or has expired.")
		}
		if len(roles) == 0 {
			roles = res.Claims.Roles
		}
		if userID == "" {
			userID = res.Claims.UserID
		}
	}
	s.count("oauth", nil)

	active := roles.Primary()
	warn := store.ReplaceSession(ctx, domainauth.Tokens{
		AccessToken:  cb.AccessToken,
		RefreshToken: cb.RefreshToken,
		UserID:       userID,
		ActiveRole:   active,
	})
	return AuthOutcome{
		User:       domainauth.User{ID: userID, Roles: roles, ActiveRole: active},
		ActiveRole: active,
		IsNewUser:  cb.IsNewUser,
		Warning:    warn,
	}, nil
}

func (s *AuthService) storeAuthResult(ctx context.Context, store *tokenstore.Store, res ports.AuthResult) (AuthOutcome, error) {
	if !res.HasTokens() {
		return AuthOutcome{}, apperrors.Wrap(errors.New("auth response has no token pair"), apperrors.ErrCodeUpstream, "")
	}
	// A sign-in replaces the whole tuple; a user with no roles must not inherit the
	// previous session's active role.
	active := activeRoleFor(res.User)
	warn := store.ReplaceSession(ctx, domainauth.Tokens{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		UserID:       res.User.ID,
		ActiveRole:   active,
	})
	user := res.User
	user.ActiveRole = active
	return AuthOutcome{User: user, ActiveRole: active, IsNewUser: res.IsNewUser, Warning: warn}, nil
}

// activeRoleFor prefers the backend's active role when the user holds it.
func activeRoleFor(u domainauth.User) domainauth.Role {
	if u.ActiveRole != "" && u.Roles.Contains(u.ActiveRole) {
		return u.ActiveRole
	}
	return u.Roles.Primary()
}

func (s *AuthService) count(op string, err error) {
	metrics.AuthOutcome(s.metrics, op, err)
}

func bearer(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}
