// Package devbackend is an in-process stand-in for the marketplace backend, used for local
// runs and end-to-end tests. It implements the auth and profile ports, signs HS256 access
// tokens with the shared secret, and logs the links it would otherwise email.
package devbackend

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/jwtverify"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
	oneTimeTokenTTL   = time.Hour
)

// Config configures the dev backend.
type Config struct {
	// Secret signs access tokens; it must match the gate's JWT secret.
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Seed is a YAML account list; nil uses the embedded seed.yaml.
	Seed   []byte
	Logger *slog.Logger
	Now    func() time.Time
}

type account struct {
	user     domainauth.User
	hash     []byte
	profiles map[domainauth.Role]profile.Snapshot
}

type refreshGrant struct {
	userID    string
	createdAt time.Time
	usedAt    time.Time
	expiresAt time.Time
}

type oneTimeToken struct {
	userID    string
	expiresAt time.Time
}

// Backend holds all state in memory. It is safe for concurrent use.
type Backend struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	verifier   *jwtverify.Verifier
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	accounts map[string]*account // by user id
	byEmail  map[string]string
	refresh  map[string]refreshGrant
	verify   map[string]oneTimeToken
	reset    map[string]oneTimeToken
}

type seedFile struct {
	Password string     `yaml:"password"`
	Users    []seedUser `yaml:"users"`
}

type seedUser struct {
	ID         string   `yaml:"id"`
	Email      string   `yaml:"email"`
	FirstName  string   `yaml:"firstName"`
	LastName   string   `yaml:"lastName"`
	Roles      []string `yaml:"roles"`
	Password   string   `yaml:"password"`
	NoPassword bool     `yaml:"noPassword"`
	Unverified bool     `yaml:"unverified"`
	Profile    struct {
		Headline  string   `yaml:"headline"`
		Company   string   `yaml:"company"`
		Expertise []string `yaml:"expertise"`
		Skills    []string `yaml:"skills"`
	} `yaml:"profile"`
}

// New builds a Backend and loads the seed accounts.
func New(cfg Config) (*Backend, error) {
	if cfg.Secret == "" {
		return nil, errors.New("dev backend: secret is required")
	}
	verifier, err := jwtverify.New(jwtverify.Config{Secret: cfg.Secret, Now: cfg.Now})
	if err != nil {
		return nil, fmt.Errorf("dev backend: %w", err)
	}
	b := &Backend{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		verifier:   verifier,
		logger:     cfg.Logger,
		now:        cfg.Now,
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		refresh:    make(map[string]refreshGrant),
		verify:     make(map[string]oneTimeToken),
		reset:      make(map[string]oneTimeToken),
	}
	if b.accessTTL <= 0 {
		b.accessTTL = defaultAccessTTL
	}
	if b.refreshTTL <= 0 {
		b.refreshTTL = defaultRefreshTTL
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "devbackend")
	if b.now == nil {
		b.now = time.Now
	}

	seed := cfg.Seed
	if seed == nil {
		seed = defaultSeed
	}
	if err := b.loadSeed(seed); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) loadSeed(data []byte) error {
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("dev backend: parse seed: %w", err)
	}
	for i, su := range sf.Users {
		email := normalizeEmail(su.Email)
		if email == "" {
			return fmt.Errorf("dev backend: seed user %d has no email", i)
		}
		if _, dup := b.byEmail[email]; dup {
			return fmt.Errorf("dev backend: duplicate seed user %s", email)
		}
		id := su.ID
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("talentgate:"+email)).String()
		}
		acct := &account{
			user: domainauth.User{
				ID:            id,
				Email:         email,
				FirstName:     su.FirstName,
				LastName:      su.LastName,
				Roles:         domainauth.ParseRoles(su.Roles),
				EmailVerified: !su.Unverified,
			},
			profiles: make(map[domainauth.Role]profile.Snapshot),
		}
		if !su.NoPassword {
			pw := su.Password
			if pw == "" {
				pw = sf.Password
			}
			if err := acct.setPassword(pw); err != nil {
				return fmt.Errorf("dev backend: seed user %s: %w", email, err)
			}
		}
		for _, role := range acct.user.Roles {
			acct.profiles[role.Canonical()] = profile.Snapshot{
				Role:      role,
				UserID:    id,
				Headline:  su.Profile.Headline,
				Company:   su.Profile.Company,
				Expertise: su.Profile.Expertise,
				Skills:    su.Profile.Skills,
				UpdatedAt: b.now().UTC(),
			}
		}
		b.accounts[id] = acct
		b.byEmail[email] = id
	}
	return nil
}

// Accounts lists the seeded and registered emails, for startup logging.
func (b *Backend) Accounts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.byEmail))
	for email := range b.byEmail {
		out = append(out, email)
	}
	return out
}

func (a *account) setPassword(pw string) error {
	if pw == "" {
		return errors.New("password is empty")
	}
	// MinCost keeps local sign-in fast; this backend never holds real credentials.
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		return err
	}
	a.hash = hash
	a.user.HasPassword = true
	return nil
}

// issue signs an access token for acct with active first, plus a refresh grant.
// Callers hold b.mu.
func (b *Backend) issue(acct *account, active domainauth.Role) (access, refresh string, err error) {
	access, err = b.sign(acct, active)
	if err != nil {
		return "", "", err
	}
	refresh, err = randomToken()
	if err != nil {
		return "", "", err
	}
	now := b.now()
	b.refresh[refresh] = refreshGrant{
		userID:    acct.user.ID,
		createdAt: now,
		usedAt:    now,
		expiresAt: now.Add(b.refreshTTL),
	}
	return access, refresh, nil
}

func (b *Backend) sign(acct *account, active domainauth.Role) (string, error) {
	if active == "" || !acct.user.Roles.Contains(active) {
		active = acct.user.Roles.Primary()
	}
	now := b.now()
	claims := jwt.MapClaims{
		"sub":        acct.user.ID,
		"email":      acct.user.Email,
		"roles":      acct.user.Roles.WithPrimary(active).Strings(),
		"activeRole": string(active),
		"iat":        now.Unix(),
		"exp":        now.Add(b.accessTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// authenticate resolves the account behind a bearer token source.
func (b *Backend) authenticate(ts oauth2.TokenSource) (*account, jwtverify.Claims, error) {
	if ts == nil {
		return nil, jwtverify.Claims{}, apperrors.Unauthorized("Please sign in to continue.")
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, jwtverify.Claims{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "Please sign in to continue.")
	}
	res := b.verifier.Verify(tok.AccessToken)
	if !res.Valid() {
		return nil, jwtverify.Claims{}, apperrors.Wrap(res.Err, apperrors.ErrCodeUnauthorized, "Your session has expired. Please sign in again.")
	}
	b.mu.Lock()
	acct, ok := b.accounts[res.Claims.UserID]
	b.mu.Unlock()
	if !ok {
		return nil, jwtverify.Claims{}, apperrors.Unauthorized("Your account no longer exists.")
	}
	return acct, res.Claims, nil
}

func (b *Backend) newOneTime(into map[string]oneTimeToken, userID string) (string, error) {
	tok, err := randomToken()
	if err != nil {
		return "", err
	}
	into[tok] = oneTimeToken{userID: userID, expiresAt: b.now().Add(oneTimeTokenTTL)}
	return tok, nil
}

// redeem consumes a one-time token. Callers hold b.mu.
func (b *Backend) redeem(from map[string]oneTimeToken, tok string) (*account, bool) {
	ot, ok := from[tok]
	if !ok {
		return nil, false
	}
	delete(from, tok)
	if b.now().After(ot.expiresAt) {
		return nil, false
	}
	acct, ok := b.accounts[ot.userID]
	return acct, ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// checkContext maps a finished context onto the timeout and canceled codes. Nothing here
// blocks, so cancellation is only checked on entry.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "")
	}
	return nil
}
