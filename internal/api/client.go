// Package api is the authenticated client for the platform REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"investdesk/internal/config"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/metrics"
	"investdesk/internal/models"
)

// TokenSource is the part of the token store the client needs.
type TokenSource interface {
	Effective(ctx context.Context) (models.Credential, bool, error)
	Primary(ctx context.Context) (models.Credential, bool, error)
	ClearAll(ctx context.Context) error
}

// Auth selects which credential a request carries.
type Auth int

const (
	// AuthEffective sends the impersonation token when present, else the primary token.
	AuthEffective Auth = iota
	// AuthPrimary always sends the primary token. Admin back-office calls use it.
	AuthPrimary
	// AuthNone sends no credential. A 401 is then an ordinary refusal and
	// does not end the session.
	AuthNone
)

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Shape  apperrors.Shape
	Auth   Auth
}

// SessionExpired is emitted once for every 401 answer to an authenticated call.
type SessionExpired struct {
	Role   models.Role
	Method string
	Path   string
	At     time.Time
}

// Client issues API requests with the current credential attached.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu        sync.RWMutex
	listeners map[int]func(SessionExpired)
	nextID    int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles outgoing requests. A non-positive rps disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logging.WithComponent(logger, "api") }
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		tokens:    tokens,
		logger:    zerolog.Nop(),
		listeners: make(map[int]func(SessionExpired)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a client from the api config section.
func NewClientFromConfig(cfg config.APIConfig, tokens TokenSource, logger zerolog.Logger) *Client {
	return NewClient(cfg.BaseURL, tokens,
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithRateLimit(cfg.RateLimit, cfg.Burst),
		WithLogger(logger),
	)
}

// OnSessionExpired registers fn for SessionExpired events and returns a
// function that removes it. Listeners run synchronously on the goroutine
// that received the 401.
func (c *Client) OnSessionExpired(fn func(SessionExpired)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Do sends req and returns the validated response body.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	var body io.Reader
	contentType := ""
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.send(ctx, req, body, contentType)
}

// DoJSON sends req and decodes the validated body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out interface{}) error {
	raw, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decode(req.Path, req.Shape, raw, out)
}

func decode(path string, shape apperrors.Shape, raw json.RawMessage, out interface{}) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewMalformedResponseError(path, shape, "undecodable "+describe(raw), err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request, body io.Reader, contentType string) (json.RawMessage, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Shape == "" {
		req.Shape = apperrors.ShapeAny
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	cred, hasCred, err := c.credential(ctx, req.Auth)
	if err != nil {
		return nil, err
	}
	if hasCred {
		httpReq.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)
	route := metricRoute(req.Path)
	metrics.APILatency.WithLabelValues(route).Observe(duration.Seconds())

	if err != nil {
		metrics.APIRequests.WithLabelValues(req.Method, route, "error").Inc()
		logging.LogAPICall(c.logger, requestID, req.Method, req.Path, 0, duration, err)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(req.Method, route, statusClass(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.LogAPICall(c.logger, requestID, req.Method, req.Path, resp.StatusCode, duration, err)
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := parseHTTPError(req.Method, req.Path, resp.StatusCode, data)
		logging.LogAPICall(c.logger, requestID, req.Method, req.Path, resp.StatusCode, duration, httpErr)

		if resp.StatusCode == http.StatusUnauthorized && req.Auth != AuthNone {
			c.expire(ctx, req)
			return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, httpErr)
		}
		return nil, httpErr
	}

	logging.LogAPICall(c.logger, requestID, req.Method, req.Path, resp.StatusCode, duration, nil)

	raw, err := validateShape(req.Path, req.Shape, data)
	if err != nil {
		metrics.MalformedResponses.WithLabelValues(route).Inc()
		c.logger.Warn().Err(err).Str("request_id", requestID).Msg("Rejected malformed response")
		return nil, err
	}
	return raw, nil
}

func (c *Client) credential(ctx context.Context, auth Auth) (models.Credential, bool, error) {
	switch auth {
	case AuthNone:
		return models.Credential{}, false, nil
	case AuthPrimary:
		cred, ok, err := c.tokens.Primary(ctx)
		if err != nil {
			return cred, false, apperrors.Wrap(err, "loading credential")
		}
		return cred, ok, nil
	default:
		cred, ok, err := c.tokens.Effective(ctx)
		if err != nil {
			return cred, false, apperrors.Wrap(err, "loading credential")
		}
		return cred, ok, nil
	}
}

// expire clears every credential and notifies listeners exactly once. The
// event carries the primary role so an admin is sent back to the admin login.
func (c *Client) expire(ctx context.Context, req Request) {
	metrics.SessionExpirations.Inc()

	// Clearing must happen even if the request context is already done.
	ctx = context.WithoutCancel(ctx)

	var role models.Role
	if primary, ok, err := c.tokens.Primary(ctx); err == nil && ok {
		role = primary.Role
	}

	if err := c.tokens.ClearAll(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear credentials after 401")
	}

	event := SessionExpired{Role: role, Method: req.Method, Path: req.Path, At: time.Now()}

	c.mu.RLock()
	listeners := make([]func(SessionExpired), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.RUnlock()

	c.logger.Warn().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("role", string(role)).
		Msg("Session expired")

	for _, fn := range listeners {
		fn(event)
	}
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	apperrors.AuthFlags
}

func parseHTTPError(method, path string, status int, data []byte) *apperrors.HTTPError {
	httpErr := apperrors.NewHTTPError(method, path, status, "")

	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		httpErr.Message = eb.Message
		if httpErr.Message == "" {
			httpErr.Message = eb.Error
		}
		httpErr.Flags = eb.AuthFlags
	}
	return httpErr
}

// validateShape checks the top-level JSON kind of data. An empty body is
// only accepted for ShapeAny.
func validateShape(path string, shape apperrors.Shape, data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		if shape == apperrors.ShapeAny {
			return nil, nil
		}
		return nil, apperrors.NewMalformedResponseError(path, shape, "empty body", nil)
	}
	if !json.Valid(trimmed) {
		return nil, apperrors.NewMalformedResponseError(path, shape, "invalid JSON", nil)
	}

	switch shape {
	case apperrors.ShapeObject:
		if trimmed[0] != '{' {
			return nil, apperrors.NewMalformedResponseError(path, shape, describe(trimmed), nil)
		}
	case apperrors.ShapeArray:
		if trimmed[0] != '[' {
			return nil, apperrors.NewMalformedResponseError(path, shape, describe(trimmed), nil)
		}
	}
	return json.RawMessage(trimmed), nil
}

// describe names the JSON kind of raw for error messages.
func describe(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "empty body"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 'n':
		return "null"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

var idSegment = regexp.MustCompile(`/([0-9]+|[0-9a-fA-F]{24}|[0-9a-fA-F-]{36})(/|$)`)

// metricRoute replaces id path segments so label cardinality stays bounded.
func metricRoute(path string) string {
	for idSegment.MatchString(path) {
		path = idSegment.ReplaceAllString(path, "/:id$2")
	}
	return path
}
