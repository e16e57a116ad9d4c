// Package client implements the resilient request client the console
// uses for every call to the monitoring service: CSRF header injection,
// timeout enforcement, manual redirect interception, and recovery from
// authentication failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/uuid"
	"github.com/hivetrace/hivectl/internal/api"
	"github.com/hivetrace/hivectl/internal/logging"
	"github.com/hivetrace/hivectl/internal/state"
	"go.uber.org/zap"
)

const DefaultTimeout = 30 * time.Second

const csrfHeader = "X-CSRF-TOKEN"

// Client issues credentialed requests against the monitoring service.
// The session cookie lives in the client's jar and is never inspected;
// its validity is only observed through response status codes.
type Client struct {
	baseURL       string
	tokenPath     string
	tokens        state.TokenStore
	jar           http.CookieJar
	httpc         *http.Client
	timeout       time.Duration
	logger        *zap.Logger
	onAuthExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the fixed per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger used for request tracing and anomalies.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient substitutes the underlying HTTP client. The redirect
// policy and cookie jar are reapplied; a caller-provided CheckRedirect
// or Jar is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithCookieJar substitutes the jar holding the session cookie. A
// durable jar (state.NewJar) keeps the session bound across process
// runs; the default jar lasts for one process.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithTokenEndpoint overrides the path used for CSRF token refresh.
func WithTokenEndpoint(path string) Option {
	return func(c *Client) { c.tokenPath = path }
}

// WithAuthExpiredHook registers a callback invoked when a request
// comes back 401. The response is still returned to the caller.
func WithAuthExpiredHook(fn func()) Option {
	return func(c *Client) { c.onAuthExpired = fn }
}

// New creates a Client rooted at baseURL, storing CSRF tokens in tokens.
func New(baseURL string, tokens state.TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		tokenPath: "/honeypot/admin/csrf-token",
		tokens:    tokens,
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.jar == nil {
		c.jar, _ = cookiejar.New(nil)
	}
	if c.httpc == nil {
		c.httpc = &http.Client{}
	}
	c.httpc.Jar = c.jar
	// An API endpoint answering with a redirect masks auth failures as
	// success; surface the redirect instead of following it.
	c.httpc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// Response is the outcome of a completed HTTP exchange. Status-driven
// failures (401/403/5xx/redirect) are represented here rather than as
// errors so callers can render contextual messages.
type Response struct {
	Status    int
	OK        bool
	Header    http.Header
	Body      []byte
	RequestID string

	// RedirectDetected marks a 3xx answer that was intercepted rather
	// than followed, with the original status preserved.
	RedirectDetected bool
}

// AuthExpired reports whether the session was rejected (401).
func (r *Response) AuthExpired() bool { return r.Status == http.StatusUnauthorized }

// CsrfRejected reports whether the CSRF token was rejected (403).
func (r *Response) CsrfRejected() bool { return r.Status == http.StatusForbidden }

// ServerError reports a 5xx status.
func (r *Response) ServerError() bool { return r.Status >= 500 }

// ErrorReason extracts the service's {error} body field, or returns
// fallback when the body carries none.
func (r *Response) ErrorReason(fallback string) string {
	var body api.ErrorResponse
	if err := json.Unmarshal(r.Body, &body); err != nil || body.Error == "" {
		return fallback
	}
	return body.Error
}

type requestOptions struct {
	headers   map[string]string
	forceCSRF bool
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

// WithHeader sets an extra request header, overriding defaults.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// WithCSRF attaches the CSRF token even on safe methods. The session
// probe uses this for session binding.
func WithCSRF() RequestOption {
	return func(o *requestOptions) { o.forceCSRF = true }
}

// Do issues a request and applies the status-code policy: a 401 fires
// the auth-expired hook, a 403 triggers exactly one transparent token
// refresh. In both cases the original response is returned; the request
// is never transparently re-executed.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, opts ...RequestOption) (*Response, error) {
	resp, err := c.do(ctx, method, path, body, opts...)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.AuthExpired():
		c.logger.Warn("session expired", logging.URL(c.baseURL+path), logging.RequestID(resp.RequestID))
		if c.onAuthExpired != nil {
			c.onAuthExpired()
		}
	case resp.CsrfRejected():
		c.logger.Warn("csrf token rejected, refreshing", logging.URL(c.baseURL+path), logging.RequestID(resp.RequestID))
		if _, err := c.FetchToken(ctx); err != nil {
			c.logger.Warn("csrf token refresh failed", zap.Error(err))
		}
	}

	return resp, nil
}

// FetchToken obtains a fresh CSRF token from the token endpoint and
// stores it.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.tokenPath, nil)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("token endpoint refused (status %d): %s",
			resp.Status, resp.ErrorReason("no reason given"))
	}

	var body api.CsrfTokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.CsrfToken == "" {
		return "", &MalformedResponseError{URL: c.baseURL + c.tokenPath, Reason: "missing csrf token field"}
	}

	if err := c.tokens.SetToken(body.CsrfToken); err != nil {
		return "", err
	}
	return body.CsrfToken, nil
}

// do performs a single exchange without the status-code policy, so the
// token refresh itself cannot recurse into another refresh.
func (c *Client) do(ctx context.Context, method, path string, body []byte, opts ...RequestOption) (*Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	url := c.baseURL + path

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.forceCSRF || stateChanging(method) {
		// Absent token: send anyway and let the server reject it.
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set(csrfHeader, token)
		}
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("request", logging.Method(method), logging.URL(url), logging.RequestID(requestID))

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		if deadlineExceeded(err) {
			c.logger.Warn("request timed out", logging.URL(url), logging.RequestID(requestID))
			return nil, &TimeoutError{URL: url}
		}
		c.logger.Warn("request failed", logging.URL(url), logging.RequestID(requestID), zap.Error(err))
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if deadlineExceeded(err) {
			return nil, &TimeoutError{URL: url}
		}
		return nil, &NetworkError{URL: url, Err: err}
	}

	resp := &Response{
		Status:    httpResp.StatusCode,
		Header:    httpResp.Header,
		Body:      respBody,
		RequestID: requestID,
	}

	if redirectStatus(httpResp.StatusCode) {
		resp.RedirectDetected = true
		c.logger.Warn("redirect intercepted on api endpoint",
			logging.URL(url), logging.Status(httpResp.StatusCode), logging.RequestID(requestID))
		return resp, nil
	}

	resp.OK = httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	if resp.ServerError() {
		c.logger.Warn("server error", logging.URL(url), logging.Status(httpResp.StatusCode), logging.RequestID(requestID))
	}
	return resp, nil
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

func redirectStatus(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func deadlineExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
