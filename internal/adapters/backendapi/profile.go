package backendapi

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	"github.com/target/talentgate/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.ProfileAPI = (*Client)(nil)

// ImageFieldName is the multipart field carrying a profile picture.
const ImageFieldName = "image"

func profilePath(role domainauth.Role) string {
	return "/" + profile.PathSegment(role) + "/profile"
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context, ts oauth2.TokenSource) (domainauth.User, error) {
	var out domainauth.User
	err := c.do(ctx, request{method: http.MethodGet, path: "/users/me", ts: ts}, &out)
	return out, err
}

// GetProfile loads the profile that belongs to role.
func (c *Client) GetProfile(ctx context.Context, ts oauth2.TokenSource, role domainauth.Role) (profile.Snapshot, error) {
	var out profile.Snapshot
	err := c.do(ctx, request{method: http.MethodGet, path: profilePath(role), ts: ts}, &out)
	return withRole(out, role), err
}

// UpdateProfile applies upd and returns the saved profile.
func (c *Client) UpdateProfile(
	ctx context.Context,
	ts oauth2.TokenSource,
	role domainauth.Role,
	upd profile.Update,
) (profile.Snapshot, error) {
	var out profile.Snapshot
	err := c.do(ctx, request{method: http.MethodPut, path: profilePath(role), ts: ts, body: upd}, &out)
	return withRole(out, role), err
}

// UploadProfileImage replaces the profile picture.
func (c *Client) UploadProfileImage(
	ctx context.Context,
	ts oauth2.TokenSource,
	role domainauth.Role,
	img profile.Image,
) (profile.Snapshot, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := img.Filename
	if filename == "" {
		filename = "profile"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ImageFieldName, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("create image part: %w", err)
	}
	if _, err = part.Write(img.Data); err != nil {
		return profile.Snapshot{}, fmt.Errorf("write image part: %w", err)
	}
	if err = mw.Close(); err != nil {
		return profile.Snapshot{}, fmt.Errorf("close multipart body: %w", err)
	}

	var out profile.Snapshot
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        profilePath(role) + "/image",
		ts:          ts,
		rawBody:     &buf,
		contentType: mw.FormDataContentType(),
	}, &out)
	return withRole(out, role), err
}

func withRole(s profile.Snapshot, role domainauth.Role) profile.Snapshot {
	if s.Role == "" {
		s.Role = role
	}
	return s
}
