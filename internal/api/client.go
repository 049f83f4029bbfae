// Package api implements the client for the billing platform's REST API.
// The wire format is the platform's JSON:API contract, including the atomic
// operations extension; this package consumes it and never redefines it.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ratectl/ratectl/internal/common"
)

const (
	jsonAPIContentType = "application/vnd.api+json"
	atomicContentType  = `application/vnd.api+json;ext="https://jsonapi.org/ext/atomic"`
)

// Config holds the connection settings for the platform API.
type Config struct {
	BaseURL            string
	Username           string
	Password           string
	Token              string // pre-issued token; skips the credential exchange
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Validate checks the configuration before any request is made.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", common.ErrMissingConfig)
	}
	if c.Token == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("%w: username and password (or a token) are required", common.ErrMissingConfig)
	}
	return nil
}

// Client talks to the platform API. All calls are blocking and sequential;
// the client holds no state beyond the bearer token.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	username   string
	password   string
	token      string
}

// NewClient creates a platform API client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	logger := slog.Default().With("component", "api")

	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit operator opt-in for self-signed instances
		logger.Warn("TLS certificate verification disabled")
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger:   logger,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		token:    cfg.Token,
	}, nil
}

// tokenResponse covers both token shapes the platform has shipped: the flat
// form and the JSON:API attribute form.
type tokenResponse struct {
	Token string `json:"token"`
	Data  struct {
		Attributes struct {
			Token string `json:"token"`
		} `json:"attributes"`
	} `json:"data"`
}

// Authenticate exchanges the configured credentials for a bearer token.
// Authentication failures are fatal; they are never retried.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: check username and password", common.ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth failed (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to parse auth response: %w", err)
	}

	token := parsed.Token
	if token == "" {
		token = parsed.Data.Attributes.Token
	}
	if token == "" {
		return fmt.Errorf("%w: no token in auth response", common.ErrUnauthorized)
	}

	c.token = token
	c.logger.Debug("authenticated", "url", c.baseURL)
	return nil
}

// EnsureAuthenticated authenticates unless a token is already held.
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	return c.Authenticate(ctx)
}

// FetchDump requests the reference-data dump for the given models and
// returns the raw sentinel-delimited body.
func (c *Client) FetchDump(ctx context.Context, models []string, progress bool) (string, error) {
	endpoint, err := url.Parse(c.baseURL + "/v1/dump/data")
	if err != nil {
		return "", fmt.Errorf("failed to build dump URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("models", strings.Join(models, ","))
	if !progress {
		query.Set("progress", "0")
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create dump request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dump request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read dump response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, body); err != nil {
		return "", fmt.Errorf("dump fetch: %w", err)
	}

	return string(body), nil
}

// authorize attaches the bearer token to a request.
func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// checkStatus maps an HTTP status to an error. 401 means the token is
// invalid or expired, which aborts the whole run.
func (c *Client) checkStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return common.ErrUnauthorized
	default:
		return fmt.Errorf("API error (status %d): %s", status, truncate(string(body), 500))
	}
}

// postJSON sends one JSON body and returns the response body after the
// status check.
func (c *Client) postJSON(ctx context.Context, path, contentType string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", jsonAPIContentType)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
