package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents a marketplace role.
// Keep string form for easy persistence, cookies, and JWT claims.
type Role string

const (
	RoleTalent    Role = "talent"
	RoleRecruiter Role = "recruiter"
	RoleEmployer  Role = "employer"
	RoleMentor    Role = "mentor"
)

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleTalent, RoleRecruiter, RoleEmployer, RoleMentor:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Canonical folds the recruiter/employer aliases onto recruiter.
func (r Role) Canonical() Role {
	if r == RoleEmployer {
		return RoleRecruiter
	}
	return r
}

// Is reports whether r and other name the same role, treating recruiter and employer as aliases.
func (r Role) Is(other Role) bool {
	return r.Canonical() == other.Canonical()
}

func (r Role) String() string { return string(r) }

// Roles is an ordered role list. The first element is the primary role.
type Roles []Role

// ParseRoles parses names, dropping unknown entries and duplicates while keeping order.
func ParseRoles(names []string) Roles {
	out := make(Roles, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil || out.containsExact(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseRoleList parses a comma separated role list as carried by the "roles" query parameter.
func ParseRoleList(csv string) Roles {
	if strings.TrimSpace(csv) == "" {
		return Roles{}
	}
	return ParseRoles(strings.Split(csv, ","))
}

// Primary returns the first role or "" when empty.
func (rs Roles) Primary() Role {
	if len(rs) == 0 {
		return ""
	}
	return rs[0]
}

// Contains reports whether role (or one of its aliases) is present.
func (rs Roles) Contains(role Role) bool {
	for _, r := range rs {
		if r.Is(role) {
			return true
		}
	}
	return false
}

// Intersects reports whether any role in rs is present in allowed.
func (rs Roles) Intersects(allowed Roles) bool {
	for _, r := range rs {
		if allowed.Contains(r) {
			return true
		}
	}
	return false
}

// WithPrimary returns a copy with active moved to the front. Unknown active roles are ignored.
func (rs Roles) WithPrimary(active Role) Roles {
	out := make(Roles, 0, len(rs))
	if active != "" && rs.Contains(active) {
		out = append(out, active)
	}
	for _, r := range rs {
		if len(out) > 0 && r.Is(out[0]) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Strings returns the role names.
func (rs Roles) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// String joins the roles with commas, the form used on URLs.
func (rs Roles) String() string {
	return strings.Join(rs.Strings(), ",")
}

func (rs Roles) containsExact(role Role) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// Tokens is the credential tuple written to the token store in one step.
// An empty ActiveRole keeps whatever role is already stored.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	ActiveRole   Role
}

// Session is the persisted per-device credential record.
type Session struct {
	DeviceID     string    `json:"device_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	ActiveRole   Role      `json:"active_role,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Authenticated returns true when the session carries an access token.
func (s Session) Authenticated() bool { return s.AccessToken != "" }

// User is the account as reported by the backend.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Roles         Roles  `json:"roles"`
	ActiveRole    Role   `json:"activeRole,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	HasPassword   bool   `json:"hasPassword"`
}

// DisplayName returns a human readable name, falling back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// ActiveSession describes one signed-in device as listed by the backend.
type ActiveSession struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"deviceId,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Current      bool      `json:"current"`
}
