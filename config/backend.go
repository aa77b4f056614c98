package config

import (
	"fmt"
	"strings"
	"time"
)

// BackendMode selects the implementation of the marketplace backend contract.
type BackendMode string

const (
	// BackendModeHTTP calls the real backend over HTTP.
	BackendModeHTTP BackendMode = "http"
	// BackendModeMock runs the in-process dev backend (for development only).
	BackendModeMock BackendMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for BackendMode.
func (m *BackendMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "http", "mock":
		*m = BackendMode(v)
		return nil
	default:
		return fmt.Errorf("invalid BackendMode: %q (valid options: http, mock)", v)
	}
}

// DevBackendConfig controls the in-process backend used when BACKEND_MODE=mock.
type DevBackendConfig struct {
	// SeedFile is a YAML account list; empty uses the built-in accounts.
	SeedFile  string        `env:"SEED_FILE"`
	AccessTTL time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	// OAuthEnabled mounts the simulated social sign-in at /dev/oauth/{email}.
	OAuthEnabled bool `env:"OAUTH_ENABLED" envDefault:"true"`
}

// BackendConfig groups the marketplace backend settings.
type BackendConfig struct {
	Mode      BackendMode   `env:"BACKEND_MODE"       envDefault:"http"`
	BaseURL   string        `env:"BACKEND_BASE_URL"   envDefault:"http://localhost:3000/api"`
	Timeout   time.Duration `env:"BACKEND_TIMEOUT"    envDefault:"10s"`
	UserAgent string        `env:"BACKEND_USER_AGENT" envDefault:"talentgate"`

	Dev DevBackendConfig `envPrefix:"DEV_BACKEND_"`
}

// Sanitize applies guardrails to backend configuration values.
func (c *BackendConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Mode == "" {
		c.Mode = BackendModeHTTP
	}
	if c.Dev.AccessTTL <= 0 {
		c.Dev.AccessTTL = 15 * time.Minute
	}
}
