// File: internal/dojo/client.go
package dojo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxResponseBody caps how much of any response is read into memory.
const maxResponseBody = 10 << 20

// Client talks to a DefectDojo-compatible REST API. Every JSON call goes
// through the session client, which is expected to carry the retry policy.
// Multipart imports go through the upload client, which must not retry.
//
// A Client is not safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	session *http.Client
	upload  *http.Client
	logger  *zap.Logger
	now     func() time.Time

	// product types resolved during this run, keyed by name.
	productTypes map[string]int
}

// Option configures a Client.
type Option func(*Client)

// WithUploadClient sets the client used for multipart imports.
func WithUploadClient(hc *http.Client) Option {
	return func(c *Client) { c.upload = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock replaces time.Now for engagement and scan dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient binds a resolved credential to the service at baseURL.
func NewClient(baseURL string, cred Credential, session *http.Client, opts ...Option) *Client {
	if session == nil {
		session = http.DefaultClient
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        cred.Token,
		session:      session,
		logger:       zap.NewNop(),
		now:          time.Now,
		productTypes: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.upload == nil {
		c.upload = c.session
	}
	return c
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// DashboardURL is the human landing page for uploaded results.
func (c *Client) DashboardURL() string { return c.baseURL + "/dashboard" }

func (c *Client) today() string {
	return c.now().Format(dateLayout)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON sends a session call with the default headers and returns the raw
// status and body. Only transport failures are returned as errors.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.send(c.session, req)
}

func (c *Client) send(hc *http.Client, req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s %s response: %w", req.Method, req.URL.Path, err)
	}
	c.logger.Debug("API call completed",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.StatusCode, respBody, nil
}

// list runs a search and decodes the results page. Any status but 200 is a
// *StatusError.
func list[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	status, body, err := c.doJSON(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Method: http.MethodGet, Path: path, StatusCode: status, Body: truncate(body)}
	}
	var p page[T]
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return p.Results, nil
}

// create posts payload and decodes the created entity. Any status but 201 is
// a *StatusError.
func create[T any](ctx context.Context, c *Client, path string, payload any) (T, error) {
	var out T
	status, body, err := c.doJSON(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return out, err
	}
	if status != http.StatusCreated {
		return out, &StatusError{Method: http.MethodPost, Path: path, StatusCode: status, Body: truncate(body)}
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return out, nil
}
