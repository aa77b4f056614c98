// Package profile holds the role-specific profile snapshot shown by the viewer layer.
package profile

import (
	"time"

	domainauth "github.com/target/talentgate/internal/domain/auth"
)

// Snapshot is a role-specific profile as returned by the backend.
// Fields that do not apply to a role are left empty.
type Snapshot struct {
	Role      domainauth.Role `json:"role"`
	UserID    string          `json:"userId"`
	Headline  string          `json:"headline,omitempty"`
	Bio       string          `json:"bio,omitempty"`
	Location  string          `json:"location,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	Skills    []string        `json:"skills,omitempty"`    // talent
	Company   string          `json:"company,omitempty"`   // recruiter/employer
	Expertise []string        `json:"expertise,omitempty"` // mentor
	Extra     map[string]any  `json:"extra,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Update is a partial profile edit. Nil fields are left unchanged by the backend.
type Update struct {
	Headline  *string        `json:"headline,omitempty"`
	Bio       *string        `json:"bio,omitempty"`
	Location  *string        `json:"location,omitempty"`
	Skills    []string       `json:"skills,omitempty"`
	Company   *string        `json:"company,omitempty"`
	Expertise []string       `json:"expertise,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Empty reports whether the update carries no changes.
func (u Update) Empty() bool {
	return u.Headline == nil && u.Bio == nil && u.Location == nil && u.Company == nil &&
		len(u.Skills) == 0 && len(u.Expertise) == 0 && len(u.Extra) == 0
}

// Image is an uploaded profile picture.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PathSegment returns the backend path segment that owns profiles for role.
// Employer profiles live with recruiter profiles.
func PathSegment(role domainauth.Role) string {
	return string(role.Canonical())
}
