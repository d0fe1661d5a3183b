// Package api is the HTTP client for the provisioning backend.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modoterra/provdash/internal/buildinfo"
	"github.com/modoterra/provdash/pkg/session"
)

const maxBodyBytes = 8 << 20

// TokenStore is the session the client reads credentials from.
// ClearIf is called with the token the backend rejected.
type TokenStore interface {
	Token() (string, bool)
	SetToken(string) error
	Clear() error
	ClearIf(string) (bool, error)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api.
	BaseURL string
	// Timeout bounds a whole request. Zero means no client-side timeout.
	Timeout            time.Duration
	InsecureSkipVerify bool
	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
	// OnUnauthorized runs after a protected call is rejected with 401 and
	// the session that made it has been cleared.
	OnUnauthorized func()
}

// Client talks to the backend. All paths are relative to the API root.
type Client struct {
	base           *url.URL
	http           *http.Client
	tokens         TokenStore
	logger         *slog.Logger
	onUnauthorized func()
}

// RequestOptions carries query parameters and an optional JSON body.
type RequestOptions struct {
	Params url.Values
	Body   any
}

// New builds a client for opts.BaseURL backed by tokens.
func New(opts Options, tokens TokenStore) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("api base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base URL %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base URL %q: scheme must be http or https", raw)
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for lab backends
		}
		hc = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = session.NewMemory()
	}

	return &Client{
		base:           base,
		http:           hc,
		tokens:         tokens,
		logger:         logger,
		onUnauthorized: opts.OnUnauthorized,
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.base.String() }

// Tokens returns the session the client authenticates with.
func (c *Client) Tokens() TokenStore { return c.tokens }

// Request performs one call and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) Request(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	body, err := c.do(ctx, method, path, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{What: method + " " + path, Err: err}
	}
	return nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := c.base.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// do sends the request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, opts RequestOptions) ([]byte, error) {
	target := c.endpoint(path, opts.Params)
	return c.send(ctx, method, target, path, opts.Body)
}

func (c *Client) send(ctx context.Context, method, target, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tok, authenticated := c.tokens.Token()
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "method", method, "path", path, "request_id", reqID, "err", err)
		return nil, &NetworkError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Method: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: string(blob)}
		if herr.Unauthorized() && authenticated {
			c.rejectSession(tok)
		}
		return nil, herr
	}
	return blob, nil
}

// rejectSession ends the session that sent tok. A 401 for a token that has
// since been replaced leaves the new session alone.
func (c *Client) rejectSession(tok string) {
	cleared, err := c.tokens.ClearIf(tok)
	if err != nil {
		c.logger.Error("clear rejected session", "err", err)
	}
	if !cleared && err == nil {
		c.logger.Debug("ignoring 401 for a replaced token")
		return
	}
	c.logger.Warn("session rejected by backend")
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// Health checks the backend's /healthz endpoint at the server root.
func (c *Client) Health(ctx context.Context) error {
	u := *c.base
	u.Path = "/healthz"
	u.RawQuery = ""
	blob, err := c.send(ctx, http.MethodGet, u.String(), "/healthz", nil)
	if err != nil {
		return err
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(blob, &st); err != nil {
		return &DecodeError{What: "health", Err: err}
	}
	if st.Status != "ok" {
		return fmt.Errorf("backend unhealthy: status %q", st.Status)
	}
	return nil
}

// StreamURL returns the WebSocket URL of the live log stream. The scheme is
// secure iff the API root is served over https.
func (c *Client) StreamURL() string {
	u := c.base.JoinPath(PathLogStream)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = ""
	return u.String()
}

// AuthHeader returns the headers a stream handshake should carry.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	h.Set("User-Agent", buildinfo.UserAgent())
	if tok, ok := c.tokens.Token(); ok {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

var errEmptyToken = errors.New("response has no access_token")
