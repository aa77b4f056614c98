// Package jwtverify verifies access tokens issued by the marketplace backend and extracts roles.
package jwtverify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/talentgate/internal/domain/auth"
)

// Status is the outcome of a verification attempt.
type Status int

const (
	// StatusUnavailable means no signing secret is configured; nothing was checked.
	StatusUnavailable Status = iota
	// StatusValid means the signature and expiry checked out.
	StatusValid
	// StatusExpired means the signature is fine but the token is past its expiry.
	StatusExpired
	// StatusInvalid covers malformed tokens, bad signatures, and wrong algorithms.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusUnavailable:
		return "unavailable"
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// DefaultRoleClaimPaths lists the claim names the backend has used for roles, in lookup order.
var DefaultRoleClaimPaths = []string{"roles", "userRoles", "role"}

// ErrSecretMissing is reported with StatusUnavailable.
var ErrSecretMissing = errors.New("jwt secret not configured")

// Claims is the subset of the token payload the gate and viewer layer care about.
type Claims struct {
	UserID    string
	Roles     domainauth.Roles
	ExpiresAt time.Time
	Raw       map[string]any
}

// Result bundles a verification status with the decoded claims (valid tokens only).
type Result struct {
	Status Status
	Claims Claims
	Err    error
}

// Valid is shorthand for Status == StatusValid.
func (r Result) Valid() bool { return r.Status == StatusValid }

// Config configures a Verifier.
type Config struct {
	// Secret is the HS256 signing secret. Empty disables verification.
	Secret string
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
	// RoleClaimPaths are JMESPath expressions tried in order; the first array result wins.
	RoleClaimPaths []string
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Verifier checks HS256 access tokens.
// It is safe for concurrent use.
type Verifier struct {
	secret    []byte
	leeway    time.Duration
	rolePaths []string
	now       func() time.Time
}

// New validates cfg and builds a Verifier. A missing secret is not an error.
func New(cfg Config) (*Verifier, error) {
	paths := cfg.RoleClaimPaths
	if len(paths) == 0 {
		paths = DefaultRoleClaimPaths
	}
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := jmespath.Compile(p); err != nil {
			return nil, fmt.Errorf("role claim path %q: %w", p, err)
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) == 0 {
		return nil, errors.New("at least one role claim path is required")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("leeway must not be negative")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret:    []byte(cfg.Secret),
		leeway:    cfg.Leeway,
		rolePaths: cleaned,
		now:       now,
	}, nil
}

// Available reports whether a secret is configured.
func (v *Verifier) Available() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks signature and expiry and decodes claims.
func (v *Verifier) Verify(token string) Result {
	if !v.Available() {
		return Result{Status: StatusUnavailable, Err: ErrSecretMissing}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{Status: StatusInvalid, Err: jwt.ErrTokenMalformed}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.leeway))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Result{Status: StatusExpired, Err: err}
		}
		return Result{Status: StatusInvalid, Err: err}
	}

	return Result{Status: StatusValid, Claims: v.decode(claims)}
}

func (v *Verifier) decode(mc jwt.MapClaims) Claims {
	raw := map[string]any(mc)
	c := Claims{
		UserID: firstString(raw, "sub", "userId", "id"),
		Roles:  v.ExtractRoles(raw),
		Raw:    raw,
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c
}

// ExtractRoles evaluates the role claim paths in order and returns the first array found.
// Non-array values are skipped; unknown role names inside the array are dropped.
func (v *Verifier) ExtractRoles(claims map[string]any) domainauth.Roles {
	paths := DefaultRoleClaimPaths
	if v != nil {
		paths = v.rolePaths
	}
	for _, p := range paths {
		found, err := jmespath.Search(p, claims)
		if err != nil || found == nil {
			continue
		}
		arr, ok := found.([]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, isStr := item.(string); isStr {
				names = append(names, s)
			}
		}
		return domainauth.ParseRoles(names)
	}
	return domainauth.Roles{}
}

// PeekExpiry reads exp without checking the signature. It is only used to decide when to refresh.
func PeekExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
