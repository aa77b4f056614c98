// Package testutil provides shared helpers for tests: Redis fixtures, signed tokens, clocks.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// TestSecret is the HS256 secret used by token helpers when a test does not care.
const TestSecret = "test-signing-secret"

// SetupTestRedis returns a Redis client for tests.
// When TEST_REDIS_ADDR is set the real server is used (and flushed); otherwise an
// in-process miniredis is started. The returned *miniredis.Miniredis is nil for a real server.
func SetupTestRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	if addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR")); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			if cerr := client.Close(); cerr != nil {
				t.Logf("warning: failed to close redis client after ping error: %v", cerr)
			}
			t.Skipf("Redis not available for testing at %s: %v", addr, err)
		}
		client.FlushDB(ctx)
		t.Cleanup(func() {
			if err := client.Close(); err != nil {
				t.Logf("warning: failed to close redis client: %v", err)
			}
		})
		return client, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client: %v", cerr)
		}
		mr.Close()
	})
	return client, mr
}

// TokenClaims describes a token minted by MintToken.
type TokenClaims struct {
	Subject string
	Roles   []string
	// RoleClaim overrides the claim name carrying Roles (default "roles").
	RoleClaim string
	ExpiresAt time.Time
	Extra     map[string]any
}

// MintToken signs an HS256 access token with secret.
func MintToken(t testing.TB, secret string, c TokenClaims) string {
	t.Helper()

	claims := jwt.MapClaims{}
	for k, v := range c.Extra {
		claims[k] = v
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	if c.Roles != nil {
		name := c.RoleClaim
		if name == "" {
			name = "roles"
		}
		claims[name] = c.Roles
	}
	exp := c.ExpiresAt
	if exp.IsZero() {
		exp = time.Now().Add(time.Hour)
	}
	claims["exp"] = exp.Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}
