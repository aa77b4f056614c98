package service

import (
	"context"
	"log/slog"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/tokenstore"
)

// SwitchRoleFailedMessage is shown when a switch fails without a usable server message.
const SwitchRoleFailedMessage = "Failed to switch role. Please try again."

// RoleSwitcherOptions groups dependencies for RoleSwitcher.
type RoleSwitcherOptions struct {
	Auth   *AuthService
	Viewer *ViewerService // optional; its cached user is dropped after a switch
	Logger *slog.Logger
}

// RoleSwitcher confirms a role switch offered to the user when a page needs a role
// they hold but are not active as.
type RoleSwitcher struct {
	auth   *AuthService
	viewer *ViewerService
	logger *slog.Logger
}

// NewRoleSwitcher constructs a RoleSwitcher.
func NewRoleSwitcher(opts RoleSwitcherOptions) *RoleSwitcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleSwitcher{auth: opts.Auth, viewer: opts.Viewer, logger: logger.With("component", "role_switcher")}
}

// SwitchRequest is a confirmed switch.
type SwitchRequest struct {
	Role domainauth.Role
	// ReturnTo is where a reload should land. Empty means the new role's landing page.
	ReturnTo string
	// OnSuccess replaces the reload when set.
	OnSuccess func(ctx context.Context, role domainauth.Role) error
}

// SwitchResult tells the caller what to do next.
type SwitchResult struct {
	ActiveRole domainauth.Role
	// Reload is true when the caller must reload so every role-scoped view re-derives.
	Reload bool
	// Target is the reload destination.
	Target  string
	Warning error
}

// SwitchError is a failed switch with the message to show the user.
type SwitchError struct {
	Message string
	Err     error
}

func (e *SwitchError) Error() string { return e.Message + ": " + e.Err.Error() }

func (e *SwitchError) Unwrap() error { return e.Err }

// Confirm switches the active role. The new token is stored before the result is returned,
// so a reload always sees the new session. On failure the session is untouched.
func (r *RoleSwitcher) Confirm(ctx context.Context, store *tokenstore.Store, req SwitchRequest) (SwitchResult, error) {
	out, err := r.auth.SwitchRole(ctx, store, req.Role)
	if err != nil {
		msg := apperrors.UserMessage(err, SwitchRoleFailedMessage)
		r.logger.InfoContext(ctx, "role switch failed", "role", req.Role, "error", err)
		return SwitchResult{}, &SwitchError{Message: msg, Err: err}
	}

	if r.viewer != nil {
		r.viewer.InvalidateUser(ctx, store)
	}

	res := SwitchResult{ActiveRole: out.ActiveRole, Warning: out.Warning}
	if req.OnSuccess != nil {
		if cbErr := req.OnSuccess(ctx, out.ActiveRole); cbErr != nil {
			return res, cbErr
		}
		return res, nil
	}

	res.Reload = true
	res.Target = req.ReturnTo
	if res.Target == "" {
		res.Target = routeaccess.GetRedirectForRole(domainauth.Roles{out.ActiveRole})
	}
	return res, nil
}
