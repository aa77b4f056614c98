package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/talentgate/config"
	redisadapter "github.com/target/talentgate/internal/adapters/redis"
	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/jwtverify"
)

const testSecret = "admin-test-secret"

func newTestContext(t *testing.T, mr *miniredis.Miniredis) (*commandContext, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.AppConfig{}
	cfg.Redis.KeyPrefix = "tg:"
	cfg.Auth.SessionTTL = time.Hour
	cfg.Auth.JWTSecret = testSecret

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Out:    &out,
		In:     strings.NewReader(""),
		connectRedis: func(context.Context, config.RedisConfig, *slog.Logger) (redis.UniversalClient, error) {
			if mr == nil {
				return nil, nil //nolint:nilnil // mirrors an unconfigured deployment.
			}
			return redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil
		},
	}
	return cmdCtx, &out
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
	assert.Less(t, strings.Index(buf.String(), "check-route"), strings.Index(buf.String(), "routes"))
}

func TestRoutes(t *testing.T) {
	cmdCtx, out := newTestContext(t, nil)
	require.NoError(t, runRoutes(cmdCtx, nil))

	s := out.String()
	assert.Less(t, strings.Index(s, "/mentorship"), strings.Index(s, "/mentor "))
	assert.Contains(t, s, "recruiter,employer")
	assert.Contains(t, s, "Public prefixes:")
	assert.Contains(t, s, "  /auth/oauth-success")
}

func TestCheckRoute(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "public", args: []string{"/login"}, want: "Decision:  public"},
		{name: "unprotected", args: []string{"/about"}, want: "Decision:  unprotected"},
		{name: "allowed", args: []string{"--roles", "talent", "/mentorship/sessions"}, want: "Decision:  allowed"},
		{name: "mentor only", args: []string{"--roles", "talent", "/mentor"}, want: "redirect to /dashboard"},
		{name: "no roles", args: []string{"/dashboard"}, want: "redirect to /onboarding"},
		{name: "employer home", args: []string{"--roles", "recruiter", "/dashboard"}, want: "redirect to /employer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmdCtx, out := newTestContext(t, nil)
			require.NoError(t, runCheckRoute(cmdCtx, tt.args))
			assert.Contains(t, out.String(), tt.want)
		})
	}

	cmdCtx, _ := newTestContext(t, nil)
	require.Error(t, runCheckRoute(cmdCtx, nil))
}

func TestInspectToken(t *testing.T) {
	verifier, err := jwtverify.New(jwtverify.Config{Secret: testSecret})
	require.NoError(t, err)
	now := time.Now().Truncate(time.Second)

	t.Run("valid", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{
			"sub":   "user-1",
			"roles": []string{"mentor", "talent"},
			"exp":   now.Add(10 * time.Minute).Unix(),
		})
		var buf bytes.Buffer
		require.NoError(t, printTokenReport(&buf, verifier, tok, now))
		assert.Contains(t, buf.String(), "Status:    valid")
		assert.Contains(t, buf.String(), "User:      user-1")
		assert.Contains(t, buf.String(), "Roles:     mentor,talent")
		assert.Contains(t, buf.String(), "(in 10m0s)")
	})

	t.Run("expired", func(t *testing.T) {
		tok := signToken(t, jwt.MapClaims{
			"sub":   "user-2",
			"roles": []string{"talent"},
			"exp":   now.Add(-time.Minute).Unix(),
		})
		var buf bytes.Buffer
		require.NoError(t, printTokenReport(&buf, verifier, tok, now))
		assert.Contains(t, buf.String(), "Status:    expired")
		assert.Contains(t, buf.String(), "Subject:   user-2 (unverified)")
		assert.Contains(t, buf.String(), "expired 1m0s ago")
	})

	t.Run("garbage", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, printTokenReport(&buf, verifier, "not-a-jwt", now))
		assert.Contains(t, buf.String(), "Status:    invalid")
		assert.Contains(t, buf.String(), "Expires:   unknown")
	})

	t.Run("command", func(t *testing.T) {
		cmdCtx, out := newTestContext(t, nil)
		tok := signToken(t, jwt.MapClaims{"sub": "u", "roles": []string{"talent"}, "exp": now.Add(time.Hour).Unix()})
		require.NoError(t, runInspectToken(cmdCtx, []string{tok}))
		assert.Contains(t, out.String(), "Status:    valid")
		require.Error(t, runInspectToken(cmdCtx, nil))
	})
}

func TestDevAccounts(t *testing.T) {
	cmdCtx, out := newTestContext(t, nil)
	require.NoError(t, runDevAccounts(cmdCtx, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines, "talent@example.com")
	assert.Contains(t, lines, "multi@example.com")
	assert.IsIncreasing(t, lines)
}

func TestSessionCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := redisadapter.NewTokenBackend(client, redisadapter.TokenBackendOptions{Prefix: "tg:device:", TTL: time.Hour})
	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, domainauth.Session{
		DeviceID:     "dev-1",
		AccessToken:  "eyJhbGciOiJIUzI1NiJ9.payload.signature",
		RefreshToken: "refresh-token-value",
		UserID:       "user-1",
		ActiveRole:   domainauth.RoleMentor,
		UpdatedAt:    time.Now(),
	}))

	t.Run("list", func(t *testing.T) {
		cmdCtx, out := newTestContext(t, mr)
		require.NoError(t, runListSessions(cmdCtx, nil))
		assert.Contains(t, out.String(), "dev-1")
		assert.Contains(t, out.String(), "mentor")
	})

	t.Run("show redacts tokens", func(t *testing.T) {
		cmdCtx, out := newTestContext(t, mr)
		require.NoError(t, runSessionShow(cmdCtx, []string{"dev-1"}))
		assert.Contains(t, out.String(), "user-1")
		assert.Contains(t, out.String(), "refres…alue")
		assert.NotContains(t, out.String(), "refresh-token-value")
	})

	t.Run("show missing", func(t *testing.T) {
		cmdCtx, out := newTestContext(t, mr)
		require.NoError(t, runSessionShow(cmdCtx, []string{"nope"}))
		assert.Contains(t, out.String(), "No session stored for device nope")
	})

	t.Run("clear declined", func(t *testing.T) {
		cmdCtx, out := newTestContext(t, mr)
		cmdCtx.In = strings.NewReader("n\n")
		require.NoError(t, runSessionClear(cmdCtx, []string{"dev-1"}))
		assert.Contains(t, out.String(), "Aborted")
		assert.True(t, mr.Exists("tg:device:dev-1"))
	})

	t.Run("clear confirmed", func(t *testing.T) {
		cmdCtx, out := newTestContext(t, mr)
		cmdCtx.In = strings.NewReader("yes\n")
		require.NoError(t, runSessionClear(cmdCtx, []string{"dev-1"}))
		assert.Contains(t, out.String(), "Cleared session for device dev-1")
		assert.False(t, mr.Exists("tg:device:dev-1"))
	})

	t.Run("list empty", func(t *testing.T) {
		cmdCtx, out := newTestContext(t, mr)
		require.NoError(t, runListSessions(cmdCtx, nil))
		assert.Contains(t, out.String(), "No device sessions stored")
	})
}

func TestSessionCommandsWithoutRedis(t *testing.T) {
	cmdCtx, _ := newTestContext(t, nil)
	require.ErrorIs(t, runSessionShow(cmdCtx, []string{"dev-1"}), errRedisNotConfigured)
	require.ErrorIs(t, runSessionClear(cmdCtx, []string{"--yes", "dev-1"}), errRedisNotConfigured)
	require.ErrorIs(t, runListSessions(cmdCtx, nil), errRedisNotConfigured)
}
