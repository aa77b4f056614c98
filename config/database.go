package config

import (
	"strings"
	"time"
)

// RedisConfig contains Redis configuration. An empty URI (and no sentinel or cluster mode)
// keeps device sessions and the profile cache in process memory.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:""`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	DB                 int      `env:"DB"                   envDefault:"0"`
	// OpTimeout bounds each read and write; the token store is hit on every request.
	OpTimeout   time.Duration `env:"OP_TIMEOUT"   envDefault:"500ms"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"2s"`
	PoolSize    int           `env:"POOL_SIZE"    envDefault:"0"`
	// KeyPrefix namespaces every key written by this service.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"talentgate:"`
}

// Sanitize trims configured addresses.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	c.KeyPrefix = strings.TrimSpace(c.KeyPrefix)
}

// Enabled reports whether any Redis topology is configured.
func (c *RedisConfig) Enabled() bool {
	return c.URI != "" || c.UseSentinel || c.UseCluster
}

// CacheConfig controls the viewer profile cache.
type CacheConfig struct {
	// ProfileFresh is how long a cached profile is served without refetching.
	ProfileFresh time.Duration `env:"CACHE_PROFILE_FRESH" envDefault:"5m"`
	// ProfileRetain is how long a cached profile is kept at all.
	ProfileRetain time.Duration `env:"CACHE_PROFILE_RETAIN" envDefault:"10m"`
	// LocalCapacity bounds the in-process cache used without Redis.
	LocalCapacity int `env:"CACHE_LOCAL_CAPACITY" envDefault:"1024"`
	// SweepInterval is how often in-process sessions and cache entries are pruned.
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"5m"`
}

// Sanitize keeps retention at least as long as freshness.
func (c *CacheConfig) Sanitize() {
	if c.ProfileFresh <= 0 {
		c.ProfileFresh = 5 * time.Minute
	}
	if c.ProfileRetain < c.ProfileFresh {
		c.ProfileRetain = c.ProfileFresh
	}
	if c.LocalCapacity <= 0 {
		c.LocalCapacity = 1024
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
}
