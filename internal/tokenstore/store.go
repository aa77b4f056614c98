// Package tokenstore keeps the per-device credential tuple (access token, refresh token,
// user id, active role) and mirrors the active role into a browser cookie.
//
// A Store is an explicit session context: callers open one per device and pass it to
// whatever needs credentials. All writes go through a single commit path that swaps in a
// complete tuple, so readers never observe a partially written set.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	domainauth "github.com/target/talentgate/internal/domain/auth"
)

// ActiveRoleCookieName is the non-HttpOnly cookie mirroring the active role.
const ActiveRoleCookieName = "activeRole"

// activeRoleCookieMaxAge is one year in seconds.
const activeRoleCookieMaxAge = 31536000

// ErrNotFound is returned by backends when no record exists for a device.
var ErrNotFound = errors.New("token record not found")

// ErrStorage marks a storage failure that did not stop the in-memory update.
var ErrStorage = errors.New("token storage unavailable")

// StorageWarning reports that the tuple was committed in memory but could not be persisted.
// It is recoverable: the current request keeps working with the new tuple.
type StorageWarning struct {
	Op  string
	Err error
}

func (w *StorageWarning) Error() string {
	return fmt.Sprintf("token storage %s: %v", w.Op, w.Err)
}

// Unwrap exposes both ErrStorage and the underlying cause.
func (w *StorageWarning) Unwrap() []error { return []error{ErrStorage, w.Err} }

// IsWarning reports whether err is only a storage warning.
func IsWarning(err error) bool {
	var w *StorageWarning
	return errors.As(err, &w)
}

// Backend persists complete tuples keyed by device id.
type Backend interface {
	Load(ctx context.Context, deviceID string) (domainauth.Session, error)
	Save(ctx context.Context, sess domainauth.Session) error
	Delete(ctx context.Context, deviceID string) error
}

// CookieSink receives the activeRole cookie whenever it changes.
type CookieSink interface {
	SetCookie(c *http.Cookie)
}

// CookieSinkFunc adapts a function to CookieSink.
type CookieSinkFunc func(c *http.Cookie)

// SetCookie calls f(c).
func (f CookieSinkFunc) SetCookie(c *http.Cookie) { f(c) }

// ResponseCookies writes cookies onto an HTTP response. Writes are serialized so a
// handler may use the store from several goroutines.
func ResponseCookies(w http.ResponseWriter) CookieSink {
	var mu sync.Mutex
	return CookieSinkFunc(func(c *http.Cookie) {
		mu.Lock()
		defer mu.Unlock()
		http.SetCookie(w, c)
	})
}

// Options configures Open.
type Options struct {
	Backend  Backend
	DeviceID string
	Cookies  CookieSink // optional
	Logger   *slog.Logger
	Now      func() time.Time
	// CookieDomain and Secure shape the activeRole cookie.
	CookieDomain string
	Secure       bool
}

// Store is the session context for one device.
// It is safe for concurrent use.
type Store struct {
	backend Backend
	cookies CookieSink
	logger  *slog.Logger
	now     func() time.Time
	domain  string
	secure  bool

	mu  sync.RWMutex
	cur domainauth.Session
}

// Open loads the device's tuple from the backend. A missing record yields an empty store.
// A backend failure also yields an empty store plus a *StorageWarning.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, errors.New("tokenstore: backend is required")
	}
	if opts.DeviceID == "" {
		return nil, errors.New("tokenstore: device id is required")
	}
	s := &Store{
		backend: opts.Backend,
		cookies: opts.Cookies,
		logger:  opts.Logger,
		now:     opts.Now,
		domain:  opts.CookieDomain,
		secure:  opts.Secure,
		cur:     domainauth.Session{DeviceID: opts.DeviceID},
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	sess, err := opts.Backend.Load(ctx, opts.DeviceID)
	switch {
	case err == nil:
		sess.DeviceID = opts.DeviceID
		s.cur = sess
	case errors.Is(err, ErrNotFound):
	default:
		w := &StorageWarning{Op: "load", Err: err}
		s.logger.WarnContext(ctx, "token storage load failed", "device_id", opts.DeviceID, "error", err)
		return s, w
	}
	return s, nil
}

// Snapshot returns a copy of the current tuple.
func (s *Store) Snapshot() domainauth.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// AccessToken returns the stored access token.
func (s *Store) AccessToken() string { return s.Snapshot().AccessToken }

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken() string { return s.Snapshot().RefreshToken }

// UserID returns the stored user id.
func (s *Store) UserID() string { return s.Snapshot().UserID }

// ActiveRole returns the stored active role.
func (s *Store) ActiveRole() domainauth.Role { return s.Snapshot().ActiveRole }

// DeviceID returns the device this store belongs to.
func (s *Store) DeviceID() string { return s.Snapshot().DeviceID }

// StoreTokens writes the tuple in one step. An empty ActiveRole keeps the current role.
// A *StorageWarning means the tuple is live in memory but was not persisted.
func (s *Store) StoreTokens(ctx context.Context, t domainauth.Tokens) error {
	return s.commit(ctx, func(cur domainauth.Session) domainauth.Session {
		next := cur
		next.AccessToken = t.AccessToken
		next.RefreshToken = t.RefreshToken
		next.UserID = t.UserID
		if t.ActiveRole != "" {
			next.ActiveRole = t.ActiveRole
		}
		return next
	})
}

// ReplaceSession swaps in a new sign-in tuple. Unlike StoreTokens every field is taken from t,
// so an empty ActiveRole clears the previous session's role and expires the cookie.
func (s *Store) ReplaceSession(ctx context.Context, t domainauth.Tokens) error {
	err := s.commit(ctx, func(cur domainauth.Session) domainauth.Session {
		return domainauth.Session{
			DeviceID:     cur.DeviceID,
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
			UserID:       t.UserID,
			ActiveRole:   t.ActiveRole,
		}
	})
	if t.ActiveRole == "" {
		s.writeCookie(s.expiredRoleCookie())
	}
	return err
}

// SetActiveRole changes only the active role.
func (s *Store) SetActiveRole(ctx context.Context, role domainauth.Role) error {
	return s.commit(ctx, func(cur domainauth.Session) domainauth.Session {
		next := cur
		next.ActiveRole = role
		return next
	})
}

// Clear removes every field, deletes the persisted record, and expires the cookie.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	deviceID := s.cur.DeviceID
	s.cur = domainauth.Session{DeviceID: deviceID}
	s.mu.Unlock()

	s.writeCookie(s.expiredRoleCookie())

	if err := s.backend.Delete(ctx, deviceID); err != nil {
		s.logger.WarnContext(ctx, "token storage delete failed", "device_id", deviceID, "error", err)
		return &StorageWarning{Op: "delete", Err: err}
	}
	return nil
}

// commit is the only write path. The lock is held across persistence so two writers on the
// same store cannot interleave their backend saves out of order.
func (s *Store) commit(ctx context.Context, mutate func(domainauth.Session) domainauth.Session) error {
	s.mu.Lock()
	next := mutate(s.cur)
	next.UpdatedAt = s.now().UTC()
	s.cur = next
	err := s.backend.Save(ctx, next)
	s.mu.Unlock()

	if next.ActiveRole != "" {
		s.writeCookie(s.roleCookie(next.ActiveRole))
	}

	if err != nil {
		s.logger.WarnContext(ctx, "token storage save failed", "device_id", next.DeviceID, "error", err)
		return &StorageWarning{Op: "save", Err: err}
	}
	return nil
}

// ActiveRoleCookie returns the cookie that mirrors the current role, or nil when no role is set.
func (s *Store) ActiveRoleCookie() *http.Cookie {
	role := s.ActiveRole()
	if role == "" {
		return nil
	}
	return s.roleCookie(role)
}

func (s *Store) roleCookie(role domainauth.Role) *http.Cookie {
	return &http.Cookie{
		Name:     ActiveRoleCookieName,
		Value:    string(role),
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   activeRoleCookieMaxAge,
		Secure:   s.secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Store) expiredRoleCookie() *http.Cookie {
	return &http.Cookie{
		Name:     ActiveRoleCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Store) writeCookie(c *http.Cookie) {
	if s.cookies == nil || c == nil {
		return
	}
	s.cookies.SetCookie(c)
}
