package devbackend

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newBackend(t *testing.T, logs io.Writer) *Backend {
	t.Helper()
	if logs == nil {
		logs = io.Discard
	}
	b, err := New(Config{
		Secret: testutil.TestSecret,
		Logger: slog.New(slog.NewTextHandler(logs, nil)),
		Now:    testutil.FixedTimeFunc(testutil.TestTime()),
	})
	require.NoError(t, err)
	return b
}

func bearer(tok string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"})
}

func verify(t *testing.T, tok string) jwtverify.Claims {
	t.Helper()
	v, err := jwtverify.New(jwtverify.Config{Secret: testutil.TestSecret, Now: testutil.FixedTimeFunc(testutil.TestTime())})
	require.NoError(t, err)
	res := v.Verify(tok)
	require.True(t, res.Valid(), "token should verify: %v", res.Err)
	return res.Claims
}

func TestNew(t *testing.T) {
	t.Run("requires a secret", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err)
	})

	t.Run("loads the embedded seed", func(t *testing.T) {
		b := newBackend(t, nil)
		assert.Contains(t, b.Accounts(), "multi@example.com")
		assert.Contains(t, b.Accounts(), "oauth-only@example.com")
	})

	t.Run("rejects duplicate seed users", func(t *testing.T) {
		_, err := New(Config{
			Secret: testutil.TestSecret,
			Seed:   []byte("password: pw\nusers:\n  - email: a@x.io\n  - email: A@x.io\n"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("rejects malformed seed", func(t *testing.T) {
		_, err := New(Config{Secret: testutil.TestSecret, Seed: []byte("users: [")})
		require.Error(t, err)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, nil)

	t.Run("signs roles into the access token", func(t *testing.T) {
		res, err := b.Login(ctx, ports.Credentials{Email: " Multi@Example.com ", Password: "talentgate-dev"})
		require.NoError(t, err)
		require.True(t, res.HasTokens())
		assert.False(t, res.IsNewUser)

		claims := verify(t, res.AccessToken)
		assert.Equal(t, res.User.ID, claims.UserID)
		assert.Equal(t, domainauth.Roles{domainauth.RoleTalent, domainauth.RoleMentor, domainauth.RoleEmployer}, claims.Roles)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := b.Login(ctx, ports.Credentials{Email: "talent@example.com", Password: "nope"})
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("account without a password", func(t *testing.T) {
		_, err := b.Login(ctx, ports.Credentials{Email: "oauth-only@example.com", Password: ""})
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := b.Login(cctx, ports.Credentials{Email: "talent@example.com", Password: "talentgate-dev"})
		assert.Equal(t, apperrors.ErrCodeCanceled, apperrors.GetCode(err))
	})
}

func TestRegisterAndConfirm(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	b := newBackend(t, &logs)

	res, err := b.Register(ctx, ports.RegisterInput{Email: "new@example.com", Password: "longenough", FirstName: "New"})
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Empty(t, res.User.Roles)
	assert.False(t, res.User.EmailVerified)
	assert.True(t, res.User.HasPassword)

	_, err = b.Register(ctx, ports.RegisterInput{Email: "NEW@example.com", Password: "longenough"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = b.Register(ctx, ports.RegisterInput{Email: "short@example.com", Password: "short"})
	assert.Equal(t, "password", apperrors.GetField(err))

	token := linkToken(t, logs.String(), "/verify-email?token=")
	confirmed, err := b.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, confirmed.User.EmailVerified)

	_, err = b.ConfirmEmail(ctx, token)
	assert.True(t, apperrors.IsValidation(err), "verification tokens are single use")
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	b := newBackend(t, &logs)

	before, err := b.Login(ctx, ports.Credentials{Email: "talent@example.com", Password: "talentgate-dev"})
	require.NoError(t, err)

	require.NoError(t, b.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, logs.String())

	require.NoError(t, b.ForgotPassword(ctx, "talent@example.com"))
	token := linkToken(t, logs.String(), "/reset-password?token=")

	require.NoError(t, b.ResetPassword(ctx, ports.ResetPasswordInput{Token: token, Password: "brand-new-pass"}))

	_, err = b.Refresh(ctx, before.RefreshToken)
	assert.True(t, apperrors.IsUnauthorized(err), "reset revokes refresh tokens")

	_, err = b.Login(ctx, ports.Credentials{Email: "talent@example.com", Password: "brand-new-pass"})
	require.NoError(t, err)
}

func TestCreatePassword(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, nil)

	res, err := b.oauthSignIn("oauth-only@example.com", nil)
	require.NoError(t, err)
	assert.False(t, res.User.HasPassword)

	require.NoError(t, b.CreatePassword(ctx, bearer(res.AccessToken), "password123"))
	err = b.CreatePassword(ctx, bearer(res.AccessToken), "password456")
	assert.True(t, apperrors.IsConflict(err))

	_, err = b.Login(ctx, ports.Credentials{Email: "oauth-only@example.com", Password: "password123"})
	require.NoError(t, err)
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, nil)

	res, err := b.Login(ctx, ports.Credentials{Email: "mentor@example.com", Password: "talentgate-dev"})
	require.NoError(t, err)

	next, err := b.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, next.RefreshToken)
	assert.Equal(t, domainauth.Roles{domainauth.RoleMentor}, verify(t, next.AccessToken).Roles)

	_, err = b.Refresh(ctx, res.RefreshToken)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestSwitchRole(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, nil)

	res, err := b.Login(ctx, ports.Credentials{Email: "multi@example.com", Password: "talentgate-dev"})
	require.NoError(t, err)

	switched, err := b.SwitchRole(ctx, bearer(res.AccessToken), domainauth.RoleMentor)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleMentor, switched.ActiveRole)
	assert.Equal(t, domainauth.RoleMentor, verify(t, switched.AccessToken).Roles.Primary())

	me, err := b.Me(ctx, bearer(switched.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleMentor, me.ActiveRole)

	// Refresh keeps the switched role.
	next, err := b.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleMentor, verify(t, next.AccessToken).Roles.Primary())

	_, err = b.SwitchRole(ctx, bearer(res.AccessToken), domainauth.RoleRecruiter)
	require.NoError(t, err, "employer holders may act as recruiter")

	_, err = b.SwitchRole(ctx, bearer("not-a-token"), domainauth.RoleMentor)
	assert.True(t, apperrors.IsUnauthorized(err))

	solo, err := b.Login(ctx, ports.Credentials{Email: "talent@example.com", Password: "talentgate-dev"})
	require.NoError(t, err)
	_, err = b.SwitchRole(ctx, bearer(solo.AccessToken), domainauth.RoleMentor)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, nil)
	creds := ports.Credentials{Email: "recruiter@example.com", Password: "talentgate-dev"}

	first, err := b.Login(ctx, creds)
	require.NoError(t, err)
	second, err := b.Login(ctx, creds)
	require.NoError(t, err)

	sessions, err := b.ActiveSessions(ctx, bearer(first.AccessToken))
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	require.NoError(t, b.Logout(ctx, bearer(first.AccessToken), first.RefreshToken))
	sessions, err = b.ActiveSessions(ctx, bearer(first.AccessToken))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	require.NoError(t, b.LogoutAllDevices(ctx, bearer(second.AccessToken)))
	sessions, err = b.ActiveSessions(ctx, bearer(second.AccessToken))
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, nil)

	res, err := b.Login(ctx, ports.Credentials{Email: "recruiter@example.com", Password: "talentgate-dev"})
	require.NoError(t, err)
	ts := bearer(res.AccessToken)

	snap, err := b.GetProfile(ctx, ts, domainauth.RoleRecruiter)
	require.NoError(t, err)
	assert.Equal(t, "Example Corp", snap.Company)

	updated, err := b.UpdateProfile(ctx, ts, domainauth.RoleEmployer, profile.Update{
		Headline: testutil.StringPtr("Hiring Go engineers"),
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleEmployer, updated.Role)
	assert.Equal(t, "Hiring Go engineers", updated.Headline)
	assert.Equal(t, "Example Corp", updated.Company, "untouched fields survive")

	img, err := b.UploadProfileImage(ctx, ts, domainauth.RoleRecruiter, profile.Image{ContentType: "image/png", Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AQID", img.ImageURL)

	_, err = b.GetProfile(ctx, ts, domainauth.RoleMentor)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestOAuthHandler(t *testing.T) {
	b := newBackend(t, nil)
	mux := http.NewServeMux()
	mux.Handle("GET "+OAuthPath, b.OAuthHandler("/"))

	t.Run("existing account", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/oauth/mentor@example.com", nil))
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/", loc.Path)
		assert.Equal(t, "false", loc.Query().Get("isNewUser"))
		assert.NotEmpty(t, loc.Query().Get("refreshToken"))
		assert.Equal(t, domainauth.Roles{domainauth.RoleMentor}, verify(t, loc.Query().Get("accessToken")).Roles)
	})

	t.Run("new account", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/oauth/fresh@example.com?roles=mentor,talent", nil))
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "true", loc.Query().Get("isNewUser"))
		assert.Equal(t, domainauth.Roles{domainauth.RoleMentor, domainauth.RoleTalent}, verify(t, loc.Query().Get("accessToken")).Roles)
	})
}

func TestAccessTokenExpires(t *testing.T) {
	now := testutil.TestTime()
	clock := func() time.Time { return now }
	b, err := New(Config{Secret: testutil.TestSecret, AccessTTL: time.Minute, Now: clock})
	require.NoError(t, err)

	res, err := b.Login(context.Background(), ports.Credentials{Email: "talent@example.com", Password: "talentgate-dev"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = b.Me(context.Background(), bearer(res.AccessToken))
	assert.True(t, apperrors.IsUnauthorized(err))
}

// linkToken pulls the token of the last logged link with the given prefix.
func linkToken(t *testing.T, logs, prefix string) string {
	t.Helper()
	i := bytes.LastIndex([]byte(logs), []byte(prefix))
	require.GreaterOrEqual(t, i, 0, "no %s link logged", prefix)
	rest := logs[i+len(prefix):]
	end := 0
	for end < len(rest) && rest[end] != ' ' && rest[end] != '\n' && rest[end] != '"' {
		end++
	}
	return rest[:end]
}
