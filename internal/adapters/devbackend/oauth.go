package devbackend

import (
	"net/http"
	"net/url"
	"strconv"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/domain/profile"
	"github.com/target/talentgate/internal/ports"
)

// OAuthPath is where the simulated provider callback is mounted.
const OAuthPath = "/dev/oauth/{email}"

// OAuthHandler simulates the backend finishing a social sign-in: it signs in (or creates) the
// account named by the path and redirects back to target with the tokens on the query string,
// the same shape the real provider callback produces.
func (b *Backend) OAuthHandler(target string) http.Handler {
	if target == "" {
		target = "/"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := normalizeEmail(r.PathValue("email"))
		if email == "" {
			http.Error(w, "email is required", http.StatusBadRequest)
			return
		}
		res, err := b.oauthSignIn(email, domainauth.ParseRoleList(r.URL.Query().Get("roles")))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		q := url.Values{}
		q.Set("accessToken", res.AccessToken)
		q.Set("refreshToken", res.RefreshToken)
		q.Set("isNewUser", strconv.FormatBool(res.IsNewUser))
		http.Redirect(w, r, target+"?"+q.Encode(), http.StatusFound)
	})
}

func (b *Backend) oauthSignIn(email string, roles domainauth.Roles) (ports.AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.byEmail[email]; ok {
		acct := b.accounts[id]
		return b.authResult(acct, acct.user.ActiveRole, false)
	}
	id, err := randomToken()
	if err != nil {
		return ports.AuthResult{}, err
	}
	acct := &account{
		user: domainauth.User{
			ID:            "usr_" + id[:12],
			Email:         email,
			Roles:         roles,
			EmailVerified: true,
		},
		profiles: make(map[domainauth.Role]profile.Snapshot),
	}
	b.accounts[acct.user.ID] = acct
	b.byEmail[email] = acct.user.ID
	return b.authResult(acct, "", true)
}
