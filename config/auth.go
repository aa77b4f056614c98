package config

import (
	"strings"
	"time"
)

// AuthConfig controls how access tokens are verified and refreshed.
type AuthConfig struct {
	// JWTSecret is the HS256 secret shared with the backend. When empty the request gate
	// lets every request through and logs the gap once.
	JWTSecret string `env:"JWT_SECRET"`

	// JWTLeeway tolerates clock skew on exp/nbf checks.
	JWTLeeway time.Duration `env:"JWT_LEEWAY" envDefault:"0s"`

	// RoleClaimPaths are JMESPath expressions tried in order to find the role array.
	RoleClaimPaths []string `env:"JWT_ROLE_CLAIM_PATHS" envDefault:"roles;userRoles;role" envSeparator:";"`

	// RefreshSkew refreshes access tokens this long before they expire.
	RefreshSkew time.Duration `env:"AUTH_REFRESH_SKEW" envDefault:"30s"`

	// SessionTTL bounds how long a device's token record is kept.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"720h"`
}

// Sanitize applies guardrails to auth configuration values.
func (c *AuthConfig) Sanitize() {
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	if c.JWTLeeway < 0 {
		c.JWTLeeway = 0
	}
	if c.RefreshSkew < 0 {
		c.RefreshSkew = 0
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}

	paths := c.RoleClaimPaths[:0]
	for _, p := range c.RoleClaimPaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	c.RoleClaimPaths = paths
}

// VerificationEnabled reports whether a JWT secret is configured.
func (c *AuthConfig) VerificationEnabled() bool {
	return c.JWTSecret != ""
}
