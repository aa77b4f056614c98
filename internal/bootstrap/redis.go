package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/talentgate/config"
)

const (
	redisClientName  = "talentgate"
	redisPingTimeout = 5 * time.Second
)

// RedisConnectConfig contains configuration for the Redis connection.
type RedisConnectConfig struct {
	Redis  config.RedisConfig
	Logger *slog.Logger
}

// ConnectRedis builds the client for the configured topology (cluster, sentinel or a
// single node) and pings it before returning.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(ctx context.Context, cfg RedisConnectConfig) (redis.UniversalClient, error) {
	build := newDirectClient
	switch {
	case cfg.Redis.UseCluster:
		build = newClusterClient
	case cfg.Redis.UseSentinel:
		build = newSentinelClient
	}
	client, desc, err := build(cfg.Redis)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis %s: %w", redactAddr(desc), pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected",
			"addr", redactAddr(desc),
			"key_prefix", cfg.Redis.KeyPrefix,
			"op_timeout", cfg.Redis.OpTimeout)
	}
	return client, nil
}

// redactAddr strips credentials from a redis URL or user:pass@host string.
func redactAddr(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.User != nil {
		u.User = url.User("*")
		return u.Redacted()
	}
	if i := strings.LastIndex(addr, "@"); i > -1 {
		return addr[i+1:]
	}
	return addr
}

// timeouts returns the dial, read and write limits shared by every topology.
func timeouts(cfg config.RedisConfig) (dial, op time.Duration) {
	dial, op = cfg.DialTimeout, cfg.OpTimeout
	if dial <= 0 {
		dial = 2 * time.Second
	}
	if op <= 0 {
		op = 500 * time.Millisecond
	}
	return dial, op
}

//nolint:ireturn // returning redis.UniversalClient keeps client selection flexible.
func newClusterClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	addrs := normalizeAddrs(cfg.ClusterNodes)
	password := cfg.Password
	username := ""
	var tlsConfig *tls.Config

	if len(addrs) == 0 {
		seed, err := clusterSeedFromURI(cfg.URI, password)
		if err != nil {
			return nil, "", err
		}
		if seed.addr != "" {
			addrs = []string{seed.addr}
			username, password, tlsConfig = seed.username, seed.password, seed.tls
		}
	}
	if len(addrs) == 0 {
		return nil, "", errors.New("redis cluster configuration requires at least one address")
	}

	dial, op := timeouts(cfg)
	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:        addrs,
		ClientName:   redisClientName,
		Username:     username,
		Password:     password,
		TLSConfig:    tlsConfig,
		DialTimeout:  dial,
		ReadTimeout:  op,
		WriteTimeout: op,
		PoolSize:     cfg.PoolSize,
	})
	return client, "cluster:" + strings.Join(addrs, ","), nil
}

//nolint:ireturn // returning redis.UniversalClient keeps client selection flexible.
func newSentinelClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	nodes := normalizeAddrs(cfg.SentinelNodes)
	if len(nodes) == 0 {
		return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
	}

	dial, op := timeouts(cfg)
	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:       cfg.SentinelMasterName,
		SentinelAddrs:    nodes,
		ClientName:       redisClientName,
		Password:         cfg.Password,
		SentinelPassword: cfg.SentinelPassword,
		DB:               cfg.DB,
		DialTimeout:      dial,
		ReadTimeout:      op,
		WriteTimeout:     op,
		PoolSize:         cfg.PoolSize,
	})
	return client, "sentinel:" + cfg.SentinelMasterName, nil
}

//nolint:ireturn // returning redis.UniversalClient keeps client selection flexible.
func newDirectClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("redis direct configuration requires a URI")
	}

	opts := &redis.Options{Addr: uri, Password: cfg.Password, DB: cfg.DB}
	if isRedisURL(uri) {
		parsed, err := redis.ParseURL(uri)
		if err != nil {
			return nil, "", fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	opts.ClientName = redisClientName
	opts.DialTimeout, opts.ReadTimeout = timeouts(cfg)
	opts.WriteTimeout = opts.ReadTimeout
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), opts.Addr, nil
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

type clusterSeed struct {
	addr     string
	username string
	password string
	tls      *tls.Config
}

// clusterSeedFromURI lets REDIS_URI name one cluster node when CLUSTER_NODES is empty.
func clusterSeedFromURI(uri, defaultPassword string) (clusterSeed, error) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" || !isRedisURL(trimmed) {
		return clusterSeed{addr: trimmed, password: defaultPassword}, nil
	}

	opt, err := redis.ParseURL(trimmed)
	if err != nil {
		return clusterSeed{}, fmt.Errorf("parse redis cluster url: %w", err)
	}
	seed := clusterSeed{addr: opt.Addr, username: opt.Username, password: defaultPassword, tls: opt.TLSConfig}
	if opt.Password != "" {
		seed.password = opt.Password
	}
	return seed, nil
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
