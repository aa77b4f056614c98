package httpx

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipServe(t *testing.T, cfg CompressionConfig, accept, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := Compression(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = io.WriteString(w, body)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if accept != "" {
		req.Header.Set("Accept-Encoding", accept)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCompressionGzipsLargeBodies(t *testing.T) {
	body := strings.Repeat("<p>hello</p>", 200)
	rec := gzipServe(t, CompressionConfig{MinSize: 256, Logger: quietLogger()}, "gzip, deflate", "text/html; charset=utf-8", body)

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Contains(t, rec.Header().Values("Vary"), "Accept-Encoding")

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestCompressionSkips(t *testing.T) {
	big := strings.Repeat("x", 2048)
	tests := []struct {
		name        string
		accept      string
		contentType string
		body        string
	}{
		{name: "client does not accept gzip", accept: "", contentType: "text/html", body: big},
		{name: "gzip refused with q=0", accept: "gzip;q=0, br", contentType: "text/html", body: big},
		{name: "small body", accept: "gzip", contentType: "application/json", body: `{"ok":true}`},
		{name: "incompressible type", accept: "gzip", contentType: "image/png", body: big},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := gzipServe(t, CompressionConfig{MinSize: 512, Logger: quietLogger()}, tt.accept, tt.contentType, tt.body)
			assert.Empty(t, rec.Header().Get("Content-Encoding"))
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestAcceptsGzip(t *testing.T) {
	assert.True(t, acceptsGzip("gzip"))
	assert.True(t, acceptsGzip("br, GZIP;q=0.5"))
	assert.False(t, acceptsGzip("gzip;q=0"))
	assert.False(t, acceptsGzip("deflate"))
	assert.False(t, acceptsGzip(""))
}
