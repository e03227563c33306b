// Package apiclient provides the request decorator every backend call goes
// through: it attaches the API key and bearer token, and turns 401/403
// responses into session teardown and typed failures.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/metrics"
	"github.com/autounite/admin-console/internal/session"
)

const (
	// APIKeyHeader identifies the console application to the backend.
	APIKeyHeader = "X-API-Key"
	// RequestIDHeader correlates a call with backend logs.
	RequestIDHeader = "X-Request-ID"

	maxErrorBodyBytes    = 64 << 10
	maxResponseBodyBytes = 8 << 20

	transportFailureMessage = "Unable to reach the backend API"
)

// UnauthorizedHandler is told when a 401 response tore down an
// authenticated session. It decides what navigation follows.
type UnauthorizedHandler interface {
	OnUnauthorized(ctx context.Context)
}

// UnauthorizedFunc adapts a function to UnauthorizedHandler.
type UnauthorizedFunc func(ctx context.Context)

// OnUnauthorized calls f.
func (f UnauthorizedFunc) OnUnauthorized(ctx context.Context) { f(ctx) }

// Config configures the client.
type Config struct {
	// BaseURL of the backend, e.g. https://api.example.com.
	BaseURL string
	// APIKey is sent as X-API-Key on every call when non-empty.
	APIKey string
	// HTTPClient executes requests. When nil a client with Timeout is used.
	HTTPClient *http.Client
	// Timeout applies to the default client only; zero leaves it to the transport.
	Timeout time.Duration
	// RateLimit caps outbound requests per second; zero disables the limiter.
	RateLimit float64
	Burst     int
	Logger    *logging.Logger
}

// Client is the request decorator.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	log            *logging.Logger
	session        *session.Store
	onUnauthorized UnauthorizedHandler
}

// New creates a client bound to store. onUnauthorized may be nil.
func New(cfg Config, store *session.Store, onUnauthorized UnauthorizedHandler) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("apiclient: BaseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("apiclient: BaseURL must be a valid URL")
	}
	if store == nil {
		return nil, fmt.Errorf("apiclient: session store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Client{
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		httpClient:     httpClient,
		limiter:        limiter,
		log:            log,
		session:        store,
		onUnauthorized: onUnauthorized,
	}, nil
}

// Bind returns a copy of c that reads credentials from store and reports
// teardowns to onUnauthorized. Transport, limiter and logger are shared.
func (c *Client) Bind(store *session.Store, onUnauthorized UnauthorizedHandler) *Client {
	cp := *c
	cp.session = store
	cp.onUnauthorized = onUnauthorized
	return &cp
}

// Session returns the store the client reads credentials from.
func (c *Client) Session() *session.Store {
	return c.session
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Header http.Header
	// Public calls send the API key but neither the bearer token nor
	// trigger session teardown on 401.
	Public bool
}

// Option customizes a Request.
type Option func(*Request)

// WithQuery sets the query string.
func WithQuery(q url.Values) Option {
	return func(r *Request) { r.Query = q }
}

// WithJSON sets a JSON request body.
func WithJSON(body interface{}) Option {
	return func(r *Request) { r.Body = body }
}

// WithHeader adds a caller header.
func WithHeader(key, value string) Option {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Add(key, value)
	}
}

// Public marks the call as unauthenticated (login, registration, public forms).
func Public() Option {
	return func(r *Request) { r.Public = true }
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...Option) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, opts...)
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, opts ...Option) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, opts...)
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, opts ...Option) (*http.Response, error) {
	return c.Do(ctx, http.MethodPatch, path, opts...)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...Option) (*http.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, opts...)
}

// Do sends a decorated request.
//
// A 401 on an authenticated call clears the session and, if a session was
// actually torn down, notifies the UnauthorizedHandler; the raw response is
// still returned. A 403 is returned as a Forbidden ServiceError carrying the
// backend's message and leaves the session alone. Any other status is passed
// through for the caller to inspect.
func (c *Client) Do(ctx context.Context, method, path string, opts ...Option) (*http.Response, error) {
	req := &Request{Method: method, Path: path}
	for _, opt := range opts {
		opt(req)
	}
	return c.Send(ctx, req)
}

// Send is Do with an explicit Request.
func (c *Client) Send(ctx context.Context, r *Request) (*http.Response, error) {
	httpReq, err := c.build(ctx, r)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apierrors.Transport(transportFailureMessage, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)

	entry := c.log.WithContext(ctx).WithFields(map[string]interface{}{
		"method":      r.Method,
		"path":        r.Path,
		"request_id":  httpReq.Header.Get(RequestIDHeader),
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		metrics.RecordAPIRequest(r.Method, r.Path, 0, duration)
		entry.WithError(err).Warn("backend request failed")
		return nil, apierrors.Transport(transportFailureMessage, err)
	}
	metrics.RecordAPIRequest(r.Method, r.Path, resp.StatusCode, duration)
	entry.WithField("status", resp.StatusCode).Debug("backend request completed")

	if r.Public {
		return resp, nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if c.session.Clear() {
			metrics.RecordSessionTeardown()
			entry.Info("session cleared after 401")
			if c.onUnauthorized != nil {
				c.onUnauthorized.OnUnauthorized(ctx)
			}
		}
	case http.StatusForbidden:
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, apierrors.Forbidden(messageFrom(body))
	}

	return resp, nil
}

func (c *Client) build(ctx context.Context, r *Request) (*http.Request, error) {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if !strings.HasPrefix(r.Path, "/") {
		r.Path = "/" + r.Path
	}

	endpoint := c.baseURL + r.Path
	if len(r.Query) > 0 {
		endpoint += "?" + r.Query.Encode()
	}

	var body io.Reader = http.NoBody
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, apierrors.Internal("failed to encode request body", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, endpoint, body)
	if err != nil {
		return nil, apierrors.Internal("failed to create request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	if !r.Public {
		if token, ok := c.session.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	return req, nil
}

// Decode closes resp and, for a 2xx status, decodes the JSON body into
// target (which may be nil). Any other status becomes a ServiceError
// carrying the body's "message" field, or defaultMsg when the body has none
// or cannot be parsed.
func Decode(resp *http.Response, defaultMsg string, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		msg := messageFrom(body)
		if msg == "" {
			msg = defaultMsg
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return apierrors.Unauthorized(msg)
		case http.StatusForbidden:
			return apierrors.Forbidden(msg)
		default:
			return apierrors.API(resp.StatusCode, msg)
		}
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(target); err != nil {
		return &apierrors.ServiceError{
			Code:       apierrors.CodeAPI,
			Message:    defaultMsg,
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// messageFrom extracts the "message" field of a JSON error body.
func messageFrom(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	return strings.TrimSpace(gjson.GetBytes(body, "message").String())
}
