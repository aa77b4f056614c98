package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/talentgate/config"
	"github.com/target/talentgate/internal/adapters/backendapi"
	"github.com/target/talentgate/internal/adapters/devbackend"
	"github.com/target/talentgate/internal/adapters/reaper"
	redisadapter "github.com/target/talentgate/internal/adapters/redis"
	"github.com/target/talentgate/internal/data"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/tokenstore"
)

// Backend bundles the two halves of the marketplace backend contract. Dev is set only when
// the in-process backend is in use.
type Backend struct {
	Auth     ports.AuthAPI
	Profiles ports.ProfileAPI
	Dev      *devbackend.Backend
	// Client is set in HTTP mode; it holds per-device backend cookies.
	Client *backendapi.Client
}

// BuildMetrics returns the statsd client when metrics are enabled, or statsd.Discard.
// The returned close function is never nil.
func BuildMetrics(ctx context.Context, cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (statsd.Sink, func() error) {
	noop := func() error { return nil }
	if !cfg.IsEnabled() {
		return statsd.Discard, noop
	}
	client, err := statsd.NewClient(ctx, statsd.Config{
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		GlobalTags: cfg.GlobalTags,
		Logger:     logger,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialise statsd client; metrics disabled", "error", err)
		return statsd.Discard, noop
	}
	logger.InfoContext(ctx, "statsd metrics enabled", "addr", cfg.StatsdAddress, "prefix", cfg.Prefix)
	return client, client.Close
}

// EnsureDevSecret gives the in-process backend a signing secret when none is configured.
// The secret lives only as long as the process, so sessions do not survive a restart.
func EnsureDevSecret(cfg *config.AppConfig, logger *slog.Logger) error {
	if cfg.Backend.Mode != config.BackendModeMock || cfg.Auth.VerificationEnabled() {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate dev jwt secret: %w", err)
	}
	cfg.Auth.JWTSecret = base64.RawStdEncoding.EncodeToString(buf)
	logger.Warn("JWT_SECRET not set; generated an ephemeral secret for the dev backend")
	return nil
}

// BuildVerifier creates the access token verifier. An empty secret yields a verifier that
// reports StatusUnavailable for every token.
func BuildVerifier(cfg config.AuthConfig) (*jwtverify.Verifier, error) {
	v, err := jwtverify.New(jwtverify.Config{
		Secret:         cfg.JWTSecret,
		Leeway:         cfg.JWTLeeway,
		RoleClaimPaths: cfg.RoleClaimPaths,
	})
	if err != nil {
		return nil, fmt.Errorf("build jwt verifier: %w", err)
	}
	return v, nil
}

// BackendDeps groups the inputs of BuildBackend.
type BackendDeps struct {
	Backend config.BackendConfig
	Auth    config.AuthConfig
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// BuildBackend selects the HTTP client or the in-process dev backend.
func BuildBackend(deps BackendDeps) (Backend, error) {
	switch deps.Backend.Mode {
	case config.BackendModeMock:
		var seed []byte
		if path := deps.Backend.Dev.SeedFile; path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return Backend{}, fmt.Errorf("read dev backend seed: %w", err)
			}
			seed = b
		}
		dev, err := devbackend.New(devbackend.Config{
			Secret:    deps.Auth.JWTSecret,
			AccessTTL: deps.Backend.Dev.AccessTTL,
			Seed:      seed,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Backend{}, err
		}
		deps.Logger.Warn("using in-process dev backend; do not run this in production",
			"accounts", dev.Accounts())
		return Backend{Auth: dev, Profiles: dev, Dev: dev}, nil

	case config.BackendModeHTTP, "":
		client, err := backendapi.New(backendapi.Config{
			BaseURL:   deps.Backend.BaseURL,
			Timeout:   deps.Backend.Timeout,
			UserAgent: deps.Backend.UserAgent,
			Metrics:   deps.Metrics,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Backend{}, fmt.Errorf("build backend client: %w", err)
		}
		return Backend{Auth: client, Profiles: client, Client: client}, nil

	default:
		return Backend{}, fmt.Errorf("unsupported backend mode %q", deps.Backend.Mode)
	}
}

// BuildTokenBackend stores device sessions in Redis when a client is available, else in memory.
//
//nolint:ireturn // the backend is chosen at runtime.
func BuildTokenBackend(client redis.UniversalClient, cfg *config.AppConfig, logger *slog.Logger) tokenstore.Backend {
	if client == nil {
		logger.Warn("redis not configured; device sessions are kept in memory and lost on restart")
		return tokenstore.NewMemoryBackend()
	}
	return redisadapter.NewTokenBackend(client, redisadapter.TokenBackendOptions{
		Prefix: cfg.Redis.KeyPrefix + "device:",
		TTL:    cfg.Auth.SessionTTL,
	})
}

// BuildCache returns the Redis profile cache or a bounded in-process cache.
//
//nolint:ireturn // the cache is chosen at runtime.
func BuildCache(client redis.UniversalClient, cfg *config.AppConfig) ports.CacheRepository {
	if client == nil {
		return data.NewLocalCacheRepo(data.LocalCacheConfig{Capacity: cfg.Cache.LocalCapacity})
	}
	return data.NewRedisCacheRepo(client, cfg.Redis.KeyPrefix+"cache:")
}

// ConnectOptionalRedis connects only when a Redis topology is configured.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func ConnectOptionalRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	if !cfg.Enabled() {
		return nil, nil //nolint:nilnil // nil client selects in-memory adapters.
	}
	client, err := ConnectRedis(ctx, RedisConnectConfig{Redis: cfg, Logger: logger})
	if err != nil {
		return nil, errors.Join(errors.New("redis is configured but unreachable"), err)
	}
	return client, nil
}

// ReaperDeps groups the inputs of BuildReaper.
type ReaperDeps struct {
	Tokens tokenstore.Backend
	Cache  ports.CacheRepository
	// Cookies is optional; nil skips the backend cookie sweep.
	Cookies  reaper.IdlePruner
	MaxIdle  time.Duration
	Interval time.Duration
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// BuildReaper returns a sweeper for the in-process stores among deps, or nil when there
// are none.
func BuildReaper(deps ReaperDeps) (*reaper.Runner, error) {
	var steps []reaper.Step
	if p, ok := deps.Tokens.(reaper.IdlePruner); ok && deps.MaxIdle > 0 {
		steps = append(steps, reaper.SessionStep(p, deps.MaxIdle))
	}
	if p, ok := deps.Cache.(reaper.ExpiredPurger); ok {
		steps = append(steps, reaper.CacheStep(p))
	}
	if deps.Cookies != nil && deps.MaxIdle > 0 {
		steps = append(steps, reaper.CookieStep(deps.Cookies, deps.MaxIdle))
	}
	if len(steps) == 0 {
		return nil, nil //nolint:nilnil // nothing to sweep.
	}
	r, err := reaper.NewRunner(reaper.Options{
		Steps:    steps,
		Interval: deps.Interval,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build reaper: %w", err)
	}
	return r, nil
}
