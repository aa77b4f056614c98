// Package backendapi is the HTTP client for the marketplace backend REST API.
//
// It only speaks the wire protocol: it never stores tokens. Calls that need a session
// take an oauth2.TokenSource and send it as a bearer token through oauth2.Transport.
// Cookies the backend sets are kept in one jar per device (see ports.WithDeviceID) and are
// never shared between browsers; calls without a device id carry no cookies.
package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/observability/metrics"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/ports"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

// GenericErrorMessage is shown when the backend gives no usable error text.
const GenericErrorMessage = "Something went wrong. Please try again."

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
	maxErrorBody    = 64 << 10
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend API root, e.g. https://api.example.com/v1.
	BaseURL string
	Timeout time.Duration
	// Transport overrides the base round tripper (tests, custom TLS).
	Transport http.RoundTripper
	UserAgent string
	// Metrics receives backend.request counts and latencies.
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// Client talks to the marketplace backend. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	transport http.RoundTripper
	timeout   time.Duration
	userAgent string
	metrics   statsd.Sink
	logger    *slog.Logger
	now       func() time.Time

	jarsMu sync.Mutex
	jars   map[string]*deviceJar
}

type deviceJar struct {
	jar      http.CookieJar
	lastUsed time.Time
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL must be http or https, got %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Metrics
	if sink == nil {
		sink = statsd.Discard
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "talentgate"
	}

	return &Client{
		base:      base,
		transport: transport,
		timeout:   timeout,
		userAgent: ua,
		metrics:   sink,
		logger:    logger.With("component", "backendapi"),
		now:       time.Now,
		jars:      make(map[string]*deviceJar),
	}, nil
}

// jarFor returns the cookie jar of the device named in ctx, creating it on first use.
// It returns nil when ctx names no device.
func (c *Client) jarFor(ctx context.Context) (http.CookieJar, error) {
	id, ok := ports.DeviceIDFromContext(ctx)
	if !ok {
		return nil, nil //nolint:nilnil // no device, no jar.
	}
	c.jarsMu.Lock()
	defer c.jarsMu.Unlock()
	dj, ok := c.jars[id]
	if !ok {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		dj = &deviceJar{jar: jar}
		c.jars[id] = dj
	}
	dj.lastUsed = c.now()
	return dj.jar, nil
}

// forgetDevice drops the cookies held for the device named in ctx.
func (c *Client) forgetDevice(ctx context.Context) {
	id, ok := ports.DeviceIDFromContext(ctx)
	if !ok {
		return
	}
	c.jarsMu.Lock()
	defer c.jarsMu.Unlock()
	delete(c.jars, id)
}

// PruneIdle drops cookie jars of devices with no backend call since cutoff.
func (c *Client) PruneIdle(_ context.Context, cutoff time.Time) (int64, error) {
	c.jarsMu.Lock()
	defer c.jarsMu.Unlock()
	var n int64
	for id, dj := range c.jars {
		if dj.lastUsed.Before(cutoff) {
			delete(c.jars, id)
			n++
		}
	}
	return n, nil
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status int
	Code   string
	// Message is the backend's own error text; empty when it sent none.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend %d", e.Status)
}

// Unwrap exposes the response as an AppError so handlers can map it to a status.
func (e *APIError) Unwrap() error {
	return &apperrors.AppError{Code: codeForStatus(e.Status), Message: e.Message}
}

func codeForStatus(status int) apperrors.ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return apperrors.ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return apperrors.ErrCodeForbidden
	case status == http.StatusNotFound:
		return apperrors.ErrCodeNotFound
	case status == http.StatusConflict:
		return apperrors.ErrCodeConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.ErrCodeValidation
	default:
		return apperrors.ErrCodeUpstream
	}
}

// StatusOf returns the HTTP status of an APIError, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// request describes one backend call.
type request struct {
	method      string
	path        string
	ts          oauth2.TokenSource
	body        any
	rawBody     io.Reader
	contentType string
}

func (c *Client) httpClient(ts oauth2.TokenSource, jar http.CookieJar) *http.Client {
	rt := c.transport
	if ts != nil {
		rt = &oauth2.Transport{Source: ts, Base: c.transport}
	}
	return &http.Client{Transport: rt, Jar: jar, Timeout: c.timeout}
}

// do sends req and decodes a JSON response into out (which may be nil).
func (c *Client) do(ctx context.Context, req request, out any) (err error) {
	body := req.rawBody
	contentType := req.contentType
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	jar, err := c.jarFor(ctx)
	if err != nil {
		return err
	}

	target := c.base.JoinPath(req.path)
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	status := 0
	defer func() {
		metrics.EmitBackendCall(c.metrics, metrics.BackendCall{
			Method:   req.method,
			Route:    req.path,
			Status:   status,
			Duration: time.Since(start),
			Err:      err,
		})
	}()

	resp, err := c.httpClient(req.ts, jar).Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed",
			"method", req.method, "path", req.path, "error", err)
		return apperrors.Wrap(fmt.Errorf("%s %s: %w", req.method, req.path, err), apperrors.ErrCodeUpstream, "")
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close backend response body", "error", cerr)
		}
	}()

	status = resp.StatusCode
	c.logger.DebugContext(ctx, "backend request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(fmt.Errorf("decode %s %s: %w", req.method, req.path, err), apperrors.ErrCodeUpstream, "")
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if len(data) > 0 && json.Unmarshal(data, &eb) == nil {
		apiErr.Code = eb.Code
		apiErr.Message = strings.TrimSpace(eb.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(eb.Error)
		}
	}
	return apiErr
}
