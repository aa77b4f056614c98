package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/tokenstore"
)

// DeviceCookieName is the HttpOnly cookie that identifies the browser's token record.
const DeviceCookieName = "device_id"

const deviceCookieMaxAge = 365 * 24 * 3600

// DeviceConfig configures the Device middleware.
type DeviceConfig struct {
	Backend      tokenstore.Backend
	CookieDomain string
	// SecureCookies forces the Secure attribute even on plain-HTTP requests.
	SecureCookies bool
	Logger        *slog.Logger
	Now           func() time.Time
}

// Device opens the token store for the requesting browser and puts it in the context.
// Browsers without a valid device cookie get a fresh id. A storage outage is logged and the
// request continues with an empty store.
func Device(cfg DeviceConfig) Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "device")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secure := cfg.SecureCookies || isSecureRequest(r)
			id := deviceID(r)
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookieName,
					Value:    id,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					MaxAge:   deviceCookieMaxAge,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			store, err := tokenstore.Open(r.Context(), tokenstore.Options{
				Backend:      cfg.Backend,
				DeviceID:     id,
				Cookies:      tokenstore.ResponseCookies(w),
				Logger:       logger,
				Now:          cfg.Now,
				CookieDomain: cfg.CookieDomain,
				Secure:       secure,
			})
			if err != nil && !tokenstore.IsWarning(err) {
				logger.ErrorContext(r.Context(), "open token store", "error", err)
				WriteAppError(w, err)
				return
			}
			ctx := ports.WithDeviceID(SetStoreInContext(r.Context(), store), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deviceID(r *http.Request) string {
	c, err := r.Cookie(DeviceCookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}
