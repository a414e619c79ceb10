package client

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
	"time"
)

// maxResponseBytes caps how much of a backend response body is read.
const maxResponseBytes = 8 << 20

// Error is a non-2xx backend response. The engine inspects Status to
// classify load failures; Message is the backend's own description.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
}

// StatusCode returns the backend status carried by err, or 0 when err
// is not a backend response error.
func StatusCode(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}

// Config defines a public type used by hallpass APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// BaseURL is the backend service root, e.g. "https://api.munihall.internal".
	BaseURL string

	// Timeout bounds each request. Defaults to 10s.
	Timeout time.Duration

	// UserAgent overrides the default request User-Agent.
	UserAgent string

	// HTTPClient overrides the underlying client. Timeout is ignored
	// when set.
	HTTPClient *http.Client
}

// Client issues JSON requests against the municipal services backend.
// Requests carry the bearer credential placed on the context via
// [WithBearer]. The client never retries: callers decide whether a
// navigation is still worth loading.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// New creates a backend [Client] from cfg.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("client base URL is required")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("invalid client timeout")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "hallpass"
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      hc,
	}, nil
}

type bearerContextKey struct{}

// WithBearer returns a context whose requests authenticate with the
// given bearer credential.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerContextKey{}, token)
}

func bearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerContextKey{}).(string)
	return token
}

// Get fetches a JSON document from the backend. Params become the query
// string; a nil map issues a bare GET.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		path = path + "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

// Put sends a JSON document to the backend and returns the response
// body, which may be empty.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPut, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("request path %q must start with /", path)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := bearerFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if len(data) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("backend returned invalid JSON for %s %s", method, path)
	}
	return json.RawMessage(data), nil
}

// errorMessage pulls a human-readable message out of an error body.
// Backends answer {"message": "..."}; anything else is passed through
// truncated.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}

	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "no response body"
	}
	return msg
}
