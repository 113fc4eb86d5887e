package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/waterdesk/outbox"
)

const (
	ordersPath = "/api/orders"
	loginPath  = "/api/login"
	logoutPath = "/api/logout"
	whoamiPath = "/api/whoami"

	// IdempotencyKeyHeader carries outbox.Entry.Key on every delivery attempt.
	IdempotencyKeyHeader = "Idempotency-Key"

	maxErrorBody = 4 << 10
)

// User is the session user reported by the server.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Client talks to the back-office API and keeps the session cookie.
type Client struct {
	base *url.URL
	http *http.Client
	cfg  Config
}

var _ outbox.Sender = (*Client)(nil)

// New returns a Client for baseURL, e.g. "https://shop.example.com".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBaseURL, baseURL)
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	httpClient := *cfg.HTTPClient
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("outbox remote: cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	return &Client{base: base, http: &httpClient, cfg: cfg}, nil
}

// Send implements outbox.Sender by posting the entry payload to /api/orders.
func (c *Client) Send(ctx context.Context, entry outbox.Entry) error {
	req, err := c.newRequest(ctx, http.MethodPost, ordersPath, entry.Payload)
	if err != nil {
		return err
	}
	if entry.Key != "" {
		req.Header.Set(IdempotencyKeyHeader, entry.Key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("outbox remote: post order: %w", err)
	}
	defer drain(resp.Body)

	if !success(resp.StatusCode) {
		return rejection(resp)
	}
	c.cfg.Logger.Debug("outbox remote order accepted", "id", entry.ID, "status", resp.StatusCode)

	return nil
}

// Login starts a session. role is optional and makes the server verify the user's role.
func (c *Client) Login(ctx context.Context, username, password, role string) (User, error) {
	body, err := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role,omitempty"`
	}{username, password, role})
	if err != nil {
		return User{}, fmt.Errorf("outbox remote: encode login: %w", err)
	}

	var out struct {
		User User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, loginPath, body, &out); err != nil {
		return User{}, err
	}

	return out.User, nil
}

// WhoAmI returns the session user, or ErrUnauthenticated when there is none.
func (c *Client) WhoAmI(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := c.doJSON(ctx, http.MethodGet, whoamiPath, nil, &out)
	var rejected *outbox.RejectionError
	if errors.As(err, &rejected) && rejected.StatusCode == http.StatusUnauthorized {
		return User{}, ErrUnauthenticated
	}
	if err != nil {
		return User{}, err
	}

	return out.User, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, logoutPath, nil, nil)
}

// Ping reports whether the server answers at all. Any HTTP status counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, whoamiPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("outbox remote: ping: %w", err)
	}
	drain(resp.Body)

	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("outbox remote: %s %s: %w", method, path, err)
	}
	defer drain(resp.Body)

	if !success(resp.StatusCode) {
		return rejection(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("outbox remote: decode %s: %w", path, err)
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("outbox remote: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	return req, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// rejection reads at most maxErrorBody bytes and prefers the JSON "error" field.
func rejection(resp *http.Response) *outbox.RejectionError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	return &outbox.RejectionError{StatusCode: resp.StatusCode, Message: msg}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
