package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/talentgate/config"
	"github.com/target/talentgate/internal/adapters/backendapi"
	"github.com/target/talentgate/internal/adapters/devbackend"
	redisadapter "github.com/target/talentgate/internal/adapters/redis"
	"github.com/target/talentgate/internal/data"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/testutil"
	"github.com/target/talentgate/internal/tokenstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.Auth.RoleClaimPaths = []string{"roles", "userRoles", "role"}
	cfg.Backend.BaseURL = "http://backend.test/api"
	cfg.Redis.KeyPrefix = "tg:"
	cfg.Sanitize()
	return cfg
}

func TestBuildMetrics(t *testing.T) {
	sink, closeFn := BuildMetrics(context.Background(), config.ObservabilityMetricsConfig{}, quietLogger())
	assert.Equal(t, statsd.Discard, sink)
	require.NoError(t, closeFn())

	sink, closeFn = BuildMetrics(context.Background(), config.ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: "127.0.0.1:8125",
		Prefix:        "talentgate",
	}, quietLogger())
	assert.IsType(t, &statsd.Client{}, sink)
	require.NoError(t, closeFn())
}

func TestEnsureDevSecret(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, EnsureDevSecret(cfg, quietLogger()))
	assert.Empty(t, cfg.Auth.JWTSecret, "http mode keeps fail-open behaviour")

	cfg.Backend.Mode = config.BackendModeMock
	require.NoError(t, EnsureDevSecret(cfg, quietLogger()))
	assert.NotEmpty(t, cfg.Auth.JWTSecret)

	cfg.Auth.JWTSecret = "fixed"
	require.NoError(t, EnsureDevSecret(cfg, quietLogger()))
	assert.Equal(t, "fixed", cfg.Auth.JWTSecret)
}

func TestBuildVerifier(t *testing.T) {
	cfg := baseConfig()
	v, err := BuildVerifier(cfg.Auth)
	require.NoError(t, err)
	assert.False(t, v.Available())
	assert.Equal(t, jwtverify.StatusUnavailable, v.Verify("anything").Status)

	cfg.Auth.RoleClaimPaths = []string{"roles[?"}
	_, err = BuildVerifier(cfg.Auth)
	require.Error(t, err)
}

func TestBuildBackend(t *testing.T) {
	cfg := baseConfig()

	t.Run("http", func(t *testing.T) {
		b, err := BuildBackend(BackendDeps{Backend: cfg.Backend, Auth: cfg.Auth, Logger: quietLogger()})
		require.NoError(t, err)
		assert.IsType(t, &backendapi.Client{}, b.Auth)
		assert.Nil(t, b.Dev)
	})

	t.Run("mock", func(t *testing.T) {
		backend := cfg.Backend
		backend.Mode = config.BackendModeMock
		auth := cfg.Auth
		auth.JWTSecret = testutil.TestSecret
		b, err := BuildBackend(BackendDeps{Backend: backend, Auth: auth, Logger: quietLogger()})
		require.NoError(t, err)
		assert.IsType(t, &devbackend.Backend{}, b.Profiles)
		require.NotNil(t, b.Dev)
	})

	t.Run("mock with missing seed file", func(t *testing.T) {
		backend := cfg.Backend
		backend.Mode = config.BackendModeMock
		backend.Dev.SeedFile = t.TempDir() + "/missing.yaml"
		auth := cfg.Auth
		auth.JWTSecret = testutil.TestSecret
		_, err := BuildBackend(BackendDeps{Backend: backend, Auth: auth, Logger: quietLogger()})
		require.Error(t, err)
	})

	t.Run("bad base url", func(t *testing.T) {
		backend := cfg.Backend
		backend.BaseURL = "ftp://backend"
		_, err := BuildBackend(BackendDeps{Backend: backend, Auth: cfg.Auth, Logger: quietLogger()})
		require.Error(t, err)
	})
}

func TestStorageSelection(t *testing.T) {
	cfg := baseConfig()

	assert.IsType(t, &tokenstore.MemoryBackend{}, BuildTokenBackend(nil, cfg, quietLogger()))
	assert.IsType(t, &data.LocalCacheRepo{}, BuildCache(nil, cfg))

	client, _ := testutil.SetupTestRedis(t)
	assert.IsType(t, &redisadapter.TokenBackend{}, BuildTokenBackend(client, cfg, quietLogger()))
	assert.IsType(t, &data.RedisCacheRepo{}, BuildCache(client, cfg))
}

func TestBuildReaper(t *testing.T) {
	cfg := baseConfig()

	r, err := BuildReaper(ReaperDeps{
		Tokens:  BuildTokenBackend(nil, cfg, quietLogger()),
		Cache:   BuildCache(nil, cfg),
		MaxIdle: time.Hour,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, r)
	swept := r.Sweep(context.Background())
	assert.Contains(t, swept, "sessions")
	assert.Contains(t, swept, "profile_cache")

	client, _ := testutil.SetupTestRedis(t)
	r, err = BuildReaper(ReaperDeps{
		Tokens:  BuildTokenBackend(client, cfg, quietLogger()),
		Cache:   BuildCache(client, cfg),
		MaxIdle: time.Hour,
	})
	require.NoError(t, err)
	assert.Nil(t, r)

	backend, err := backendapi.New(backendapi.Config{BaseURL: "http://backend.invalid"})
	require.NoError(t, err)
	r, err = BuildReaper(ReaperDeps{
		Tokens:  BuildTokenBackend(client, cfg, quietLogger()),
		Cache:   BuildCache(client, cfg),
		Cookies: backend,
		MaxIdle: time.Hour,
	})
	require.NoError(t, err)
	require.NotNil(t, r)
	swept = r.Sweep(context.Background())
	assert.Contains(t, swept, "backend_cookies")
	assert.NotContains(t, swept, "sessions")
}

func TestConnectOptionalRedis(t *testing.T) {
	ctx := context.Background()

	client, err := ConnectOptionalRedis(ctx, config.RedisConfig{}, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, client)

	mr := miniredis.RunT(t)
	client, err = ConnectOptionalRedis(ctx, config.RedisConfig{URI: "redis://" + mr.Addr() + "/0"}, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	gone, err := miniredis.Run()
	require.NoError(t, err)
	addr := gone.Addr()
	gone.Close()
	_, err = ConnectOptionalRedis(ctx, config.RedisConfig{URI: addr}, quietLogger())
	require.Error(t, err)
}

func TestNewClusterClientRequiresAddress(t *testing.T) {
	_, _, err := newClusterClient(config.RedisConfig{UseCluster: true})
	require.Error(t, err)

	client, desc, err := newClusterClient(config.RedisConfig{URI: "redis://user:pw@localhost:7000"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, "cluster:localhost:7000", desc)
}

func TestNewSentinelClientRequiresNodes(t *testing.T) {
	_, _, err := newSentinelClient(config.RedisConfig{UseSentinel: true, SentinelNodes: []string{" "}})
	require.Error(t, err)
}

func TestNewDirectClientAppliesLimits(t *testing.T) {
	client, desc, err := newDirectClient(config.RedisConfig{
		URI:       "redis://:secret@localhost:6380/2",
		OpTimeout: 250 * time.Millisecond,
		PoolSize:  7,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, "localhost:6380", desc)

	opts := client.(*redis.Client).Options()
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "talentgate", opts.ClientName)
	assert.Equal(t, 250*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.WriteTimeout)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 7, opts.PoolSize)

	_, _, err = newDirectClient(config.RedisConfig{})
	require.Error(t, err)
}

func TestRedactAddr(t *testing.T) {
	assert.Equal(t, "redis://%2A@cache:6379/0", redactAddr("redis://user:pw@cache:6379/0"))
	assert.Equal(t, "cache:6379", redactAddr("pw@cache:6379"))
	assert.Equal(t, "sentinel:mymaster", redactAddr("sentinel:mymaster"))
}
