package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/tokenstore"
	"golang.org/x/sync/singleflight"
)

// Default profile cache windows.
const (
	DefaultProfileFresh  = 5 * time.Minute
	DefaultProfileRetain = 10 * time.Minute
	// DefaultFetchTimeout bounds a shared backend fetch, which outlives any single caller.
	DefaultFetchTimeout = 10 * time.Second
)

// ViewerServiceOptions groups dependencies for ViewerService.
type ViewerServiceOptions struct {
	Auth     *AuthService
	Profiles ports.ProfileAPI
	Cache    ports.CacheRepository
	// FreshFor is how long a cached entry is served without refetching.
	FreshFor time.Duration
	// RetainFor is how long an entry is kept at all.
	RetainFor time.Duration
	// FetchTimeout bounds one collapsed backend fetch.
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Now       func() time.Time
}

// ViewerService exposes the signed-in user, their roles, and the active-role profile.
// Reads are served from a short-lived cache; mutations write their confirmed result
// straight into it.
type ViewerService struct {
	auth     *AuthService
	profiles ports.ProfileAPI
	cache    ports.CacheRepository
	fresh    time.Duration
	retain   time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
}

// NewViewerService constructs a ViewerService.
func NewViewerService(opts ViewerServiceOptions) *ViewerService {
	fresh := opts.FreshFor
	if fresh <= 0 {
		fresh = DefaultProfileFresh
	}
	retain := opts.RetainFor
	if retain <= 0 {
		retain = DefaultProfileRetain
	}
	retain = max(retain, fresh)
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ViewerService{
		auth:     opts.Auth,
		profiles: opts.Profiles,
		cache:    opts.Cache,
		fresh:    fresh,
		retain:   retain,
		timeout:  timeout,
		logger:   logger.With("component", "viewer_service"),
		now:      now,
	}
}

// Viewer is the identity the app shell renders against.
type Viewer struct {
	User domainauth.User `json:"user"`
	// Roles lists every held role with the active one first.
	Roles      domainauth.Roles `json:"roles"`
	ActiveRole domainauth.Role  `json:"activeRole"`
}

// HasRole reports whether the viewer holds role.
func (v Viewer) HasRole(role domainauth.Role) bool { return v.Roles.Contains(role) }

// Current returns the viewer, re-validated against the backend at most once per fresh window.
// If the stored active role is missing or no longer held, a held role is chosen and stored.
func (s *ViewerService) Current(ctx context.Context, store *tokenstore.Store) (Viewer, error) {
	if store.AccessToken() == "" {
		return Viewer{}, ErrNoSession
	}

	user, err := loadCached(ctx, s, s.userKey(store), func(ctx context.Context) (domainauth.User, error) {
		return s.profiles.Me(ctx, s.auth.TokenSource(ctx, store))
	})
	if err != nil {
		return Viewer{}, err
	}

	active := store.ActiveRole()
	if active == "" || !user.Roles.Contains(active) {
		active = activeRoleFor(user)
		if active != "" {
			// A storage warning is logged by the store; the role is live for this request.
			_ = store.SetActiveRole(ctx, active)
		}
	}
	user.ActiveRole = active

	return Viewer{User: user, Roles: user.Roles.WithPrimary(active), ActiveRole: active}, nil
}

// Profile returns the profile of the active role.
func (s *ViewerService) Profile(ctx context.Context, store *tokenstore.Store) (profile.Snapshot, error) {
	role, err := s.activeRole(ctx, store)
	if err != nil {
		return profile.Snapshot{}, err
	}
	return loadCached(ctx, s, s.profileKey(store, role), func(ctx context.Context) (profile.Snapshot, error) {
		return s.profiles.GetProfile(ctx, s.auth.TokenSource(ctx, store), role)
	})
}

// UpdateProfile saves upd and caches the result. Failures leave the cache untouched.
func (s *ViewerService) UpdateProfile(ctx context.Context, store *tokenstore.Store, upd profile.Update) (profile.Snapshot, error) {
	role, err := s.activeRole(ctx, store)
	if err != nil {
		return profile.Snapshot{}, err
	}
	snap, err := s.profiles.UpdateProfile(ctx, s.auth.TokenSource(ctx, store), role, upd)
	if err != nil {
		return profile.Snapshot{}, err
	}
	s.write(ctx, s.profileKey(store, role), snap)
	return snap, nil
}

// UploadProfileImage replaces the profile picture and caches the result.
func (s *ViewerService) UploadProfileImage(ctx context.Context, store *tokenstore.Store, img profile.Image) (profile.Snapshot, error) {
	role, err := s.activeRole(ctx, store)
	if err != nil {
		return profile.Snapshot{}, err
	}
	snap, err := s.profiles.UploadProfileImage(ctx, s.auth.TokenSource(ctx, store), role, img)
	if err != nil {
		return profile.Snapshot{}, err
	}
	s.write(ctx, s.profileKey(store, role), snap)
	return snap, nil
}

// InvalidateUser drops the cached user so the next read goes to the backend.
func (s *ViewerService) InvalidateUser(ctx context.Context, store *tokenstore.Store) {
	if _, err := s.cache.Delete(ctx, s.userKey(store)); err != nil {
		s.logger.WarnContext(ctx, "invalidate cached user", "device_id", store.DeviceID(), "error", err)
	}
}

// Logout clears the viewer cache and signs the device out.
func (s *ViewerService) Logout(ctx context.Context, store *tokenstore.Store) error {
	s.InvalidateUser(ctx, store)
	return s.auth.Logout(ctx, store)
}

func (s *ViewerService) activeRole(ctx context.Context, store *tokenstore.Store) (domainauth.Role, error) {
	if store.AccessToken() == "" {
		return "", ErrNoSession
	}
	if role := store.ActiveRole(); role != "" {
		return role, nil
	}
	v, err := s.Current(ctx, store)
	if err != nil {
		return "", err
	}
	if v.ActiveRole == "" {
		return "", fmt.Errorf("user %s holds no role", v.User.ID)
	}
	return v.ActiveRole, nil
}

// userKey includes the stored user id so a new sign-in on the device never reads the
// previous account's entry.
func (s *ViewerService) userKey(store *tokenstore.Store) string {
	snap := store.Snapshot()
	return "viewer:device:" + snap.DeviceID + ":user:" + snap.UserID
}

func (s *ViewerService) profileKey(store *tokenstore.Store, role domainauth.Role) string {
	owner := store.UserID()
	if owner == "" {
		owner = "device:" + store.DeviceID()
	}
	return "viewer:profile:" + owner + ":" + string(role.Canonical())
}

// cacheEntry wraps a cached value with its fetch time so freshness is independent of the
// cache's own TTL, which only bounds retention.
type cacheEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Data      json.RawMessage `json:"data"`
}

// loadCached serves key from the cache while fresh; otherwise it fetches through a
// singleflight group and stores the result. Fetch failures are never cached.
// The shared fetch runs detached from the first caller's cancellation, bounded by the
// fetch timeout, so one aborted request does not fail every caller waiting on the key.
func loadCached[T any](
	ctx context.Context,
	s *ViewerService,
	key string,
	fetch func(context.Context) (T, error),
) (T, error) {
	var zero T
	if v, ok := s.read(ctx, key); ok {
		var out T
		if err := json.Unmarshal(v, &out); err == nil {
			return out, nil
		}
	}

	ch := s.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		v, fetchErr := fetch(fetchCtx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		s.write(fetchCtx, key, v)
		return v, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}
	out, ok := res.Val.(T)
	if !ok {
		return zero, fmt.Errorf("cache %s: unexpected value type %T", key, res.Val)
	}
	return out, nil
}

// read returns the payload for key when a fresh entry exists.
func (s *ViewerService) read(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "viewer cache read failed", "key", key, "error", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var ent cacheEntry
	if err := json.Unmarshal(raw, &ent); err != nil {
		return nil, false
	}
	if s.now().Sub(ent.FetchedAt) >= s.fresh {
		return nil, false
	}
	return ent.Data, true
}

func (s *ViewerService) write(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.WarnContext(ctx, "viewer cache encode failed", "key", key, "error", err)
		return
	}
	raw, err := json.Marshal(cacheEntry{FetchedAt: s.now().UTC(), Data: data})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.retain); err != nil {
		s.logger.WarnContext(ctx, "viewer cache write failed", "key", key, "error", err)
	}
}
