// Package api is the REST client for the SafeTrip backend and the replay
// strategies built on it.
package api

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

	apperrors "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
)

const (
	defaultBaseURL   = "http://localhost:3000"
	apiPrefix        = "/api/v1"
	defaultUserAgent = "offlineq/0.1"
	defaultTimeout   = 10 * time.Second
	maxErrorBody     = 4 << 10
)

// Backend defines the calls the agent makes against the backend.
// It is implemented by *Client and can be faked in tests.
type Backend interface {
	Send(ctx context.Context, method models.Method, endpoint string, payload json.RawMessage) error
	Health(ctx context.Context) error
	OfflineStatus(ctx context.Context) (*models.OfflineStatus, error)
	ProcessOffline(ctx context.Context, reqs []models.ProcessRequest) (*models.ProcessResult, error)
}

var _ Backend = (*Client)(nil)

// StatusError is returned for non-2xx backend responses. It unwraps to the
// classified *errors.AppError, so errors.CodeOf works on it directly.
type StatusError struct {
	Code int
	Body string

	classified *apperrors.AppError
}

func newStatusError(code int, body string) *StatusError {
	return &StatusError{
		Code:       code,
		Body:       body,
		classified: apperrors.FromHTTPStatus(code, body),
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.classified == nil {
		return nil
	}
	return e.classified
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the backend REST API under /api/v1.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	token     string
	userAgent string
}

// NewClient builds a Client for the given base URL.
func NewClient(opts ClientOptions) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		token:     strings.TrimSpace(opts.Token),
		userAgent: defaultUserAgent,
	}, nil
}

// Send replays a single request against endpoint. Any 2xx is success and the
// response body is discarded.
func (c *Client) Send(ctx context.Context, method models.Method, endpoint string, payload json.RawMessage) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	var body []byte
	if len(payload) > 0 && method != models.MethodGet {
		body = payload
	}
	return c.do(ctx, string(method), endpoint, body, nil)
}

// Health probes GET /health. It satisfies connectivity.Source.
func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Probe implements connectivity.Source.
func (c *Client) Probe(ctx context.Context) error {
	return c.Health(ctx)
}

// OfflineStatus fetches the requests the backend reports as buffered.
func (c *Client) OfflineStatus(ctx context.Context) (*models.OfflineStatus, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload models.OfflineStatus
	if err := c.do(ctx, http.MethodGet, "/offline/status", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ProcessOffline posts a batch of requests to the backend relay. The body
// is a bare JSON array.
func (c *Client) ProcessOffline(ctx context.Context, reqs []models.ProcessRequest) (*models.ProcessResult, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if reqs == nil {
		reqs = []models.ProcessRequest{}
	}
	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	var payload models.ProcessResult
	if err := c.do(ctx, http.MethodPost, "/offline/process", body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, dest any) error {
	reqURL := c.resolve(endpoint)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// resolve joins the API prefix and endpoint, keeping any query string the
// endpoint carries.
func (c *Client) resolve(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	rel, err := url.Parse(apiPrefix + endpoint)
	if err != nil {
		rel = &url.URL{Path: apiPrefix + endpoint}
	}
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + rel.Path
	u.RawQuery = rel.RawQuery
	return u.String()
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse base url %q: missing host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
