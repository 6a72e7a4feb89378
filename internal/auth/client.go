package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultExchangeTimeout bounds a single refresh exchange.
	DefaultExchangeTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

var (
	ErrUnexpectedStatus  = errors.New("unexpected status from refresh endpoint")
	ErrEmptyResponse     = errors.New("empty response from refresh endpoint")
	ErrMalformedResponse = errors.New("malformed response from refresh endpoint")
)

// DefaultHeaders are the identification headers sent with every exchange.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"appagent":      "MDSUser",
		"X-Environment": "itg1",
	}
}

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client exchanges a refresh token for a new token record by POSTing to the
// refresh URL.
type Client struct {
	httpClient HTTPClient
	headers    map[string]string
	timeout    time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeaders replaces the identification headers.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithTimeout sets the per-exchange deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClock overrides the clock used to stamp lastUpdate.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a token exchange client.
func NewClient(logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: NewHTTPClient(),
		headers:    DefaultHeaders(),
		timeout:    DefaultExchangeTimeout,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange POSTs an empty form to refreshURL and decodes the token record
// from the response.
func (c *Client) Exchange(ctx context.Context, refreshURL string) (*TokenRecord, error) {
	if strings.TrimSpace(refreshURL) == "" {
		return nil, fmt.Errorf("refresh url is empty")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	c.logger.Debug().
		Str("url", RedactURL(refreshURL)).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Refresh endpoint responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, preview(body))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResponse
	}

	var record TokenRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !record.Valid() {
		return nil, fmt.Errorf("%w: missing access_token or refresh_token", ErrMalformedResponse)
	}
	record.LastUpdate = c.now().UnixMilli()

	return &record, nil
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
