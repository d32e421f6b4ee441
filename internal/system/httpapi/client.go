// Package httpapi adapts an HTTP JSON API into the exploration engine:
// a client that executes declarative requests against the target, and an
// observer that snapshots configured GET endpoints into observations.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/env"
)

// DefaultTimeout bounds requests when no explicit timeout is configured.
const DefaultTimeout = 30 * time.Second

// Client executes JSON requests against the target under test.
//
// Thread-safety: safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	bearer  string
	logger  *slog.Logger
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithBearerToken sends the token on every request.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.bearer = token
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the target at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Request describes one HTTP call. Path, Body, and header values may
// contain ${key} placeholders interpolated from the env at execution
// time.
type Request struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// RequestRecord is what lands in action.Result.Request: enough to
// reproduce the call by hand.
type RequestRecord struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Body   string `json:"body,omitempty"`
}

// Do executes the request with env interpolation and returns a Result
// carrying the request record, the decoded response, the status, and the
// wall time. A response of any status is a completed execution; only
// transport failures return an error.
func (c *Client) Do(ctx context.Context, e *env.Env, req Request) (*action.Result, error) {
	path, err := interpolate(req.Path, e)
	if err != nil {
		return nil, fmt.Errorf("interpolate path: %w", err)
	}
	body, err := interpolate(req.Body, e)
	if err != nil {
		return nil, fmt.Errorf("interpolate body: %w", err)
	}

	record := RequestRecord{Method: req.Method, URL: c.baseURL + path, Body: body}

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, record.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for name, val := range req.Headers {
		interpolated, err := interpolate(val, e)
		if err != nil {
			return nil, fmt.Errorf("interpolate header %s: %w", name, err)
		}
		httpReq.Header.Set(name, interpolated)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, record.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	res := &action.Result{
		Success:  resp.StatusCode < 400,
		Status:   resp.StatusCode,
		Request:  record,
		Response: decodeBody(raw),
		Duration: time.Since(start),
	}
	c.logger.Debug("request executed",
		"method", req.Method,
		"url", record.URL,
		"status", resp.StatusCode,
		"duration", res.Duration)
	return res, nil
}

// GetJSON fetches path and decodes the JSON response into a generic
// value. Non-2xx statuses are errors; observers want hard failures, not
// half-observed states.
func (c *Client) GetJSON(ctx context.Context, path string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, truncate(raw))
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// PostJSON sends a JSON payload and decodes the JSON response.
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, truncate(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeBody decodes JSON when possible and falls back to the raw text.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		return decoded
	}
	return string(raw)
}

var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolate replaces ${key} placeholders with env values. A missing
// key is an error: eligibility gating should have kept the action off
// the frontier, so surfacing it beats sending a mangled request.
func interpolate(template string, e *env.Env) (string, error) {
	if template == "" || !strings.Contains(template, "${") {
		return template, nil
	}

	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[2 : len(m)-1]
		v, ok := e.Get(key)
		if !ok {
			missing = append(missing, key)
			return m
		}
		return fmt.Sprintf("%v", v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("env keys not set: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func truncate(raw []byte) string {
	const max = 200
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
