package devbackend

import (
	"context"
	"encoding/base64"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.ProfileAPI = (*Backend)(nil)

// Me returns the caller's account with the active role taken from the token.
func (b *Backend) Me(ctx context.Context, ts oauth2.TokenSource) (domainauth.User, error) {
	if err := checkContext(ctx); err != nil {
		return domainauth.User{}, err
	}
	acct, claims, err := b.authenticate(ts)
	if err != nil {
		return domainauth.User{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	user := acct.user
	active := claims.Roles.Primary()
	if active == "" || !user.Roles.Contains(active) {
		active = user.Roles.Primary()
	}
	user.ActiveRole = active
	user.Roles = user.Roles.WithPrimary(active)
	return user, nil
}

// GetProfile returns the caller's profile for role, creating an empty one on first access.
func (b *Backend) GetProfile(ctx context.Context, ts oauth2.TokenSource, role domainauth.Role) (profile.Snapshot, error) {
	acct, err := b.profileOwner(ctx, ts, role)
	if err != nil {
		return profile.Snapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot(acct, role), nil
}

// UpdateProfile applies the non-nil fields of upd.
func (b *Backend) UpdateProfile(
	ctx context.Context,
	ts oauth2.TokenSource,
	role domainauth.Role,
	upd profile.Update,
) (profile.Snapshot, error) {
	acct, err := b.profileOwner(ctx, ts, role)
	if err != nil {
		return profile.Snapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.snapshot(acct, role)
	if upd.Headline != nil {
		snap.Headline = *upd.Headline
	}
	if upd.Bio != nil {
		snap.Bio = *upd.Bio
	}
	if upd.Location != nil {
		snap.Location = *upd.Location
	}
	if upd.Company != nil {
		snap.Company = *upd.Company
	}
	if len(upd.Skills) > 0 {
		snap.Skills = append([]string(nil), upd.Skills...)
	}
	if len(upd.Expertise) > 0 {
		snap.Expertise = append([]string(nil), upd.Expertise...)
	}
	if len(upd.Extra) > 0 {
		if snap.Extra == nil {
			snap.Extra = make(map[string]any, len(upd.Extra))
		}
		for k, v := range upd.Extra {
			snap.Extra[k] = v
		}
	}
	snap.UpdatedAt = b.now().UTC()
	acct.profiles[role.Canonical()] = snap
	return snap, nil
}

// UploadProfileImage stores the image inline as a data URL.
func (b *Backend) UploadProfileImage(
	ctx context.Context,
	ts oauth2.TokenSource,
	role domainauth.Role,
	img profile.Image,
) (profile.Snapshot, error) {
	acct, err := b.profileOwner(ctx, ts, role)
	if err != nil {
		return profile.Snapshot{}, err
	}
	if len(img.Data) == 0 {
		return profile.Snapshot{}, apperrors.ValidationField("image", "An image file is required.")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.snapshot(acct, role)
	snap.ImageURL = "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	snap.UpdatedAt = b.now().UTC()
	acct.profiles[role.Canonical()] = snap
	return snap, nil
}

func (b *Backend) profileOwner(ctx context.Context, ts oauth2.TokenSource, role domainauth.Role) (*account, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	acct, _, err := b.authenticate(ts)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	held := acct.user.Roles.Contains(role)
	b.mu.Unlock()
	if !held {
		return nil, apperrors.Forbidden("You do not have the " + string(role) + " role.")
	}
	return acct, nil
}

// snapshot returns the stored profile for role or a blank one. Callers hold b.mu.
func (b *Backend) snapshot(acct *account, role domainauth.Role) profile.Snapshot {
	if snap, ok := acct.profiles[role.Canonical()]; ok {
		snap.Role = role
		return snap
	}
	return profile.Snapshot{Role: role, UserID: acct.user.ID, UpdatedAt: b.now().UTC()}
}
