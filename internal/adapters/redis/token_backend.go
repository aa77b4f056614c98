// Package redis provides Redis-based adapters for talentgate.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/tokenstore"
)

// DefaultTokenTTL bounds how long an idle device record is kept.
const DefaultTokenTTL = 30 * 24 * time.Hour

const defaultTokenPrefix = "talentgate:device:"

// TokenBackend stores one JSON tuple per device.
// Each Save is a single SET so a record is always a whole tuple. The TTL slides on every
// write and on every read (GETEX).
type TokenBackend struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// TokenBackendOptions configures NewTokenBackend.
type TokenBackendOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewTokenBackend creates a Redis-backed token backend.
func NewTokenBackend(client redis.UniversalClient, opts TokenBackendOptions) *TokenBackend {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultTokenPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenBackend{client: client, prefix: prefix, ttl: ttl}
}

var _ tokenstore.Backend = (*TokenBackend)(nil)

func (b *TokenBackend) key(deviceID string) string { return b.prefix + deviceID }

func (b *TokenBackend) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.DeviceID == "" {
		return errors.New("device ID cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}
	if err := b.client.Set(ctx, b.key(sess.DeviceID), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *TokenBackend) Load(ctx context.Context, deviceID string) (domainauth.Session, error) {
	if deviceID == "" {
		return domainauth.Session{}, tokenstore.ErrNotFound
	}

	data, err := b.client.GetEx(ctx, b.key(deviceID), b.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, tokenstore.ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis getex: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal(data, &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal token record: %w", unmarshalErr)
	}
	sess.DeviceID = deviceID
	return sess, nil
}

func (b *TokenBackend) Delete(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return nil // Nothing to delete
	}
	return b.client.Del(ctx, b.key(deviceID)).Err()
}

// TTL reports the remaining lifetime of a device record.
func (b *TokenBackend) TTL(ctx context.Context, deviceID string) (time.Duration, error) {
	return b.client.TTL(ctx, b.key(deviceID)).Result()
}

// Devices returns the ids of stored device records, scanning in batches.
func (b *TokenBackend) Devices(ctx context.Context, limit int) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("scan device records: %w", err)
		}
		for _, k := range keys {
			out = append(out, k[len(b.prefix):])
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}
