package httpx

// Page names; each maps to a "<name>-content" template.
const (
	PageLogin      = "login"
	PageSignup     = "signup"
	PageOnboarding = "onboarding"
	PageApp        = "app"
	PageRoleSwitch = "role-switch"
	PageError      = "error"

	PageForgotPassword = "forgot-password"
	PageResetPassword  = "reset-password"
	PageVerifyEmail    = "verify-email"
	PageCreatePassword = "create-password"
)

//nolint:gochecknoglobals // static read-only lookup for templates
var contentTemplates = map[string]string{
	PageLogin:      "login-content",
	PageSignup:     "signup-content",
	PageOnboarding: "onboarding-content",
	PageApp:        "app-content",
	PageRoleSwitch: "role-switch-content",
	PageError:      "error-content",

	PageForgotPassword: "forgot-password-content",
	PageResetPassword:  "reset-password-content",
	PageVerifyEmail:    "verify-email-content",
	PageCreatePassword: "create-password-content",
}

// ContentTemplateFor returns the content template for page.
// Falls back to the error content for unknown pages.
func ContentTemplateFor(page string) string {
	if name, ok := contentTemplates[page]; ok {
		return name
	}
	return "error-content"
}

// TemplatePathFromTest points at the on-disk templates from this package's directory.
const TemplatePathFromTest = "../../web/templates"
