package ports

import (
	"context"
	"time"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	"golang.org/x/oauth2"
)

// ProfileAPI is the backend's viewer surface: the current user and role-specific profiles.
type ProfileAPI interface {
	Me(ctx context.Context, ts oauth2.TokenSource) (domainauth.User, error)
	GetProfile(ctx context.Context, ts oauth2.TokenSource, role domainauth.Role) (profile.Snapshot, error)
	UpdateProfile(
		ctx context.Context,
		ts oauth2.TokenSource,
		role domainauth.Role,
		upd profile.Update,
	) (profile.Snapshot, error)
	UploadProfileImage(
		ctx context.Context,
		ts oauth2.TokenSource,
		role domainauth.Role,
		img profile.Image,
	) (profile.Snapshot, error)
}

// CacheRepository is a byte-oriented cache with per-key TTL.
type CacheRepository interface {
	// Set stores a value with the given TTL. A TTL of 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns nil, nil when the key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the cache connection.
	Health(ctx context.Context) error
}
