// Package talentgate provides the embedded shell templates.
package talentgate

import "embed"

// TemplateFS holds the HTML shell: layout, role-gated page frame, auth pages.
// Pages are rendered from disk instead when the server runs with a template directory override.
//
//go:embed all:web/templates
var TemplateFS embed.FS
