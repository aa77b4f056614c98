// Package routeaccess holds the static role-route table and the access predicates built on it.
//
// The table is loaded once at startup and never mutated. Rules are matched in
// declaration order: the first rule whose prefix matches a path decides, even
// when a later rule has a longer matching prefix.
package routeaccess

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"gopkg.in/yaml.v3"
)

// Landing pages returned by GetRedirectForRole.
const (
	OnboardingPath = "/onboarding"
	EmployerPath   = "/employer"
	MentorPath     = "/mentor"
	DashboardPath  = "/dashboard"
	LoginPath      = "/login"
)

// DefaultTokenLandingPath is the page that moves OAuth tokens from the URL into storage.
const DefaultTokenLandingPath = "/auth/oauth-success"

//go:embed routes.yaml
var defaultTableYAML []byte

// Rule grants the listed roles access to every path under Prefix.
type Rule struct {
	Prefix string
	Roles  domainauth.Roles
}

// Table is an ordered, immutable set of access rules plus the public allow-list.
type Table struct {
	rules  []Rule
	public []string
}

type tableFile struct {
	Public []string `yaml:"public"`
	Rules  []struct {
		Prefix string   `yaml:"prefix"`
		Roles  []string `yaml:"roles"`
	} `yaml:"rules"`
}

// LoadOptions controls where the table comes from.
type LoadOptions struct {
	// Path of a YAML table file. Empty uses the embedded default table.
	Path string
	// ExtraPublic prefixes are appended to the public allow-list (e.g. the token-landing route).
	ExtraPublic []string
}

// Load reads the table from opts.Path or the embedded default.
func Load(opts LoadOptions) (*Table, error) {
	data := defaultTableYAML
	if opts.Path != "" {
		b, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("read route table: %w", err)
		}
		data = b
	}
	t, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, p := range opts.ExtraPublic {
		t.addPublic(p)
	}
	return t, nil
}

// Default returns the embedded table. It panics if the embedded file is malformed.
func Default() *Table {
	t, err := Parse(defaultTableYAML)
	if err != nil {
		panic("routeaccess: embedded table: " + err.Error()) //nolint:forbidigo // embedded asset is fixed at build time.
	}
	return t
}

// Parse decodes a YAML table. Unknown role names are rejected.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		prefix := strings.TrimSpace(r.Prefix)
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route table rule %d: prefix %q must start with /", i, r.Prefix)
		}
		roles := make(domainauth.Roles, 0, len(r.Roles))
		for _, name := range r.Roles {
			role, err := domainauth.ParseRole(name)
			if err != nil {
				return nil, fmt.Errorf("route table rule %d (%s): %w", i, prefix, err)
			}
			roles = append(roles, role)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("route table rule %d (%s): no roles", i, prefix)
		}
		rules = append(rules, Rule{Prefix: prefix, Roles: roles})
	}
	if len(rules) == 0 {
		return nil, errors.New("route table has no rules")
	}

	t := &Table{rules: rules}
	for _, p := range f.Public {
		t.addPublic(p)
	}
	return t, nil
}

// New builds a table from rules in the given order.
func New(rules []Rule, public []string) *Table {
	t := &Table{rules: append([]Rule(nil), rules...)}
	for _, p := range public {
		t.addPublic(p)
	}
	return t
}

func (t *Table) addPublic(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return
	}
	for _, p := range t.public {
		if p == prefix {
			return
		}
	}
	t.public = append(t.public, prefix)
}

// Rules returns a copy of the rules in declaration order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Public returns a copy of the public allow-list.
func (t *Table) Public() []string {
	return append([]string(nil), t.public...)
}

// Match returns the first rule whose prefix matches pathname.
func (t *Table) Match(pathname string) (Rule, bool) {
	for _, r := range t.rules {
		if strings.HasPrefix(pathname, r.Prefix) {
			return r, true
		}
	}
	return Rule{}, false
}

// IsProtected reports whether any rule covers pathname.
func (t *Table) IsProtected(pathname string) bool {
	_, ok := t.Match(pathname)
	return ok
}

// CanAccessRoute reports whether any of userRoles may view pathname.
// Empty roles and unmatched paths are denied.
func (t *Table) CanAccessRoute(pathname string, userRoles domainauth.Roles) bool {
	if len(userRoles) == 0 {
		return false
	}
	rule, ok := t.Match(pathname)
	if !ok {
		return false
	}
	return userRoles.Intersects(rule.Roles)
}

// IsPublicRoute reports whether pathname bypasses role checks.
func (t *Table) IsPublicRoute(pathname string) bool {
	for _, p := range t.public {
		if strings.HasPrefix(pathname, p) {
			return true
		}
	}
	return false
}

// GetRedirectForRole picks the landing page for the primary (first) role.
func GetRedirectForRole(userRoles domainauth.Roles) string {
	if len(userRoles) == 0 {
		return OnboardingPath
	}
	switch userRoles.Primary() {
	case domainauth.RoleRecruiter, domainauth.RoleEmployer:
		return EmployerPath
	case domainauth.RoleMentor:
		return MentorPath
	default:
		return DashboardPath
	}
}
