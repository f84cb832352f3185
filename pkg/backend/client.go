package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to the session backend over HTTP. It consumes the auth,
// disconnect, and status endpoints; it never re-implements their logic.
type Client struct {
	baseURL       string
	sessionCookie string
	httpClient    *http.Client
	log           *logrus.Entry
}

// Config holds backend client configuration.
type Config struct {
	BaseURL       string
	SessionCookie string // value of the backend's session cookie
	Timeout       time.Duration
}

// AuthInfo is the result of an authentication probe.
type AuthInfo struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// Status carries the externally computed session metrics polled for
// display.
type Status struct {
	Connected       bool            `json:"connected"`
	FramesProcessed int             `json:"frames_processed"`
	CommandCount    int             `json:"command_count"`
	LastAnalysis    json.RawMessage `json:"last_analysis,omitempty"`
}

// NewClient creates a backend client.
func NewClient(config Config, logger *logrus.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:       config.BaseURL,
		sessionCookie: config.SessionCookie,
		httpClient:    &http.Client{Timeout: config.Timeout},
		log:           logger.WithField("component", "backend"),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.sessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: "scry_session", Value: c.sessionCookie})
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding backend response: %w", err)
	}
	return nil
}

// CheckAuth probes the session's authentication state.
func (c *Client) CheckAuth(ctx context.Context) (AuthInfo, error) {
	var info AuthInfo
	if err := c.getJSON(ctx, "/auth/check", &info); err != nil {
		return AuthInfo{}, err
	}
	return info, nil
}

// Me retrieves the authenticated user's identity.
func (c *Client) Me(ctx context.Context) (AuthInfo, error) {
	var info AuthInfo
	if err := c.getJSON(ctx, "/auth/me", &info); err != nil {
		return AuthInfo{}, err
	}
	return info, nil
}

// Status retrieves the current session metrics.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	if err := c.getJSON(ctx, "/control/status", &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// NotifyDisconnect tells the backend the session is tearing down. Best
// effort: failures are logged by the caller and never block teardown.
func (c *Client) NotifyDisconnect(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/rtc/disconnect")
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("disconnect notification failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("disconnect notification returned status %d", resp.StatusCode)
	}
	return nil
}

// Logout invalidates the backend session.
func (c *Client) Logout(ctx context.Context) error {
	return c.getJSON(ctx, "/auth/logout", nil)
}
