package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/talentgate/internal/domain/auth"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/service"
)

func TestRenderLayoutWithViewer(t *testing.T) {
	tr := testRenderer(t)
	v := service.Viewer{
		User:       userWith(domainauth.RoleTalent, domainauth.RoleMentor),
		Roles:      domainauth.Roles{domainauth.RoleMentor, domainauth.RoleTalent},
		ActiveRole: domainauth.RoleMentor,
	}
	req := httptest.NewRequest(http.MethodGet, "/mentor/sessions", nil)
	req = req.WithContext(SetViewerInContext(req.Context(), v))
	rec := httptest.NewRecorder()

	tr.Render(rec, req, http.StatusOK, Page{Name: PageApp, Title: "Mentor"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Mentor · TalentGate</title>")
	assert.Contains(t, body, `<option value="mentor" selected>Mentor</option>`)
	assert.Contains(t, body, `<option value="talent">Talent</option>`)
	assert.Contains(t, body, `name="redirect_uri" value="/mentor/sessions"`)
}

func TestRenderEscapesMessages(t *testing.T) {
	tr := testRenderer(t)
	rec := httptest.NewRecorder()
	tr.Render(rec, httptest.NewRequest(http.MethodGet, "/login", nil), http.StatusBadRequest, Page{
		Name:    PageLogin,
		Message: `<script>alert(1)</script>`,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestRenderError(t *testing.T) {
	tr := testRenderer(t)
	rec := httptest.NewRecorder()
	tr.RenderError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), apperrors.Forbidden("Not allowed here."))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not allowed here.")
	assert.Contains(t, rec.Body.String(), `data-page="error"`)
}

func TestRenderTemplateFailure(t *testing.T) {
	fsys := fstest.MapFS{
		"layout.tmpl":    {Data: []byte(`{{define "layout"}}{{renderSection .Name .}}{{end}}`)},
		"pages/app.tmpl": {Data: []byte(`{{define "app-content"}}{{.Missing}}{{end}}`)},
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: fsys, Logger: quietLogger()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	tr.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, Page{Name: PageApp})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewTemplateRendererRequiresFS(t *testing.T) {
	_, err := NewTemplateRenderer(TemplateRendererConfig{})
	assert.Error(t, err)
}

func TestContentTemplateFor(t *testing.T) {
	assert.Equal(t, "role-switch-content", ContentTemplateFor(PageRoleSwitch))
	assert.Equal(t, "error-content", ContentTemplateFor("no-such-page"))
}
