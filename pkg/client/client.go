// Package client reads a running vpnr's status surface over HTTP(S).
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8080/api"
	defaultTimeout = 10 * time.Second
)

// Client talks to GET {base}/status and GET {base}/logs.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration. Any TLS field implies HTTPS settings on
// the transport; the scheme itself comes from BaseURL.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger

	CACert     string // PEM bundle to trust, e.g. the server's tls_ca.crt
	ClientCert string
	ClientKey  string
	ServerName string
	Insecure   bool // skip certificate verification
}

// DefaultConfig points at the default `vpnr run` listener.
func DefaultConfig() Config {
	return Config{BaseURL: defaultBaseURL, Timeout: defaultTimeout}
}

// InsecureConfig is DefaultConfig over HTTPS without verification, for
// self-signed development certificates.
func InsecureConfig() Config {
	c := DefaultConfig()
	c.BaseURL = "https://localhost:8080/api"
	c.Insecure = true
	return c
}

// APIError is a non-200 answer from the server.
type APIError struct {
	StatusCode int
	Message    string // server-provided error text, if any
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("vpnr api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("vpnr api: HTTP %d: %s", e.StatusCode, e.Message)
}

// New builds a client. It fails only when TLS material cannot be loaded.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	tc, err := clientTLS(config)
	if err != nil {
		return nil, err
	}
	if tc != nil {
		transport.TLSClientConfig = tc
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

// IsReachable reports whether a vpnr status endpoint answers at the base URL.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("Server unreachable", "url", c.baseURL, "error", err)
	}
	return err == nil
}

// Status returns the current engine session and connection state.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.getJSON(ctx, "/status", nil, &out)
	return out, err
}

// Logs returns the newest limit status log items, oldest first. limit <= 0
// returns the whole buffer.
func (c *Client) Logs(ctx context.Context, limit int) (LogsResponse, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out LogsResponse
	err := c.getJSON(ctx, "/logs", q, &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeError(resp)
		c.logger.Warn("API request failed", "path", path, "status", resp.StatusCode, "error", apiErr.Message)
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode}
	var body ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Message = body.Error
	}
	return e
}

// IsNotFound reports whether err is a 404 from the server, typically a wrong
// base path.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
