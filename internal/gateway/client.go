// Package gateway is the single path between the client and the backend. It
// attaches credentials, detects expired sessions and classifies failures.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/logging"
	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// SessionStore is the part of the session store the gateway needs.
type SessionStore interface {
	Token() string
	ClearSession() error
}

// Client sends every backend call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	store      SessionStore
	logger     *log.Logger

	mu    sync.Mutex
	hooks []func()
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a gateway for baseURL (e.g. http://localhost:5000/api).
func New(baseURL string, store SessionStore, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		store:      store,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// OnAuthExpired registers fn to run after the session has been cleared because
// of a 401. Hooks run in registration order, once per failing response.
func (c *Client) OnAuthExpired(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Call describes one JSON request.
type Call struct {
	Method string
	// Path is relative to the base URL and already escaped, e.g. "/documents/list".
	Path  string
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body any
	// Fallback is the message used when a failure carries no backend text.
	Fallback string
	// Anonymous calls carry no bearer token, and a 401 on them leaves the
	// session alone.
	Anonymous bool
}

// Do sends a JSON call and decodes a 2xx body into out (when out is non-nil).
func (c *Client) Do(ctx context.Context, call Call, out any) error {
	var body io.Reader
	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, c.endpoint(call.Path, call.Query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, call.Fallback, call.Anonymous, out)
}

// HealthStatus is the backend's health payload.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// Health calls GET /health. It needs no session.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.Do(ctx, Call{Method: http.MethodGet, Path: "/health", Fallback: "Backend unavailable", Anonymous: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) send(req *http.Request, fallback string, anonymous bool, out any) error {
	if fallback == "" {
		fallback = genericMessage
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("Accept", "application/json")
	if token := c.store.Token(); token != "" && !anonymous {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Debug().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Str("request_id", requestID).Msg("request failed")
		return &NetworkError{Method: req.Method, URL: req.URL.Redacted(), Fallback: fallback, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Dur("elapsed", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp, fallback)
		if apiErr.RequestID == "" {
			apiErr.RequestID = requestID
		}
		if resp.StatusCode == http.StatusUnauthorized && !anonymous {
			c.handleUnauthorized(req, apiErr)
			return &AuthExpiredError{BackendError: apiErr}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleUnauthorized is the one place where an expired or invalid session is
// handled: the store is cleared and every listener is told.
func (c *Client) handleUnauthorized(req *http.Request, apiErr *BackendError) {
	c.logger.Warn().Str("path", req.URL.Path).Str("request_id", apiErr.RequestID).Msg("backend rejected credentials, clearing session")
	if err := c.store.ClearSession(); err != nil {
		c.logger.Error().Err(err).Msg("clear session after 401")
	}
	c.mu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func decodeError(resp *http.Response, fallback string) *BackendError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &BackendError{StatusCode: resp.StatusCode, Raw: raw, RequestID: resp.Header.Get("X-Request-Id")}
	if msg, ok := raw["error"].(string); ok && msg != "" {
		apiErr.Message = msg
	} else if v, ok := raw["error"].(map[string]any); ok {
		if msg, ok := v["message"].(string); ok {
			apiErr.Message = msg
		}
	}
	if apiErr.Message == "" {
		if msg, ok := raw["msg"].(string); ok {
			apiErr.Message = msg
		} else if msg, ok := raw["message"].(string); ok {
			apiErr.Message = msg
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = fallback
		apiErr.Generic = true
	}
	return apiErr
}
