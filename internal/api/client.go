// Package api provides the HTTP client for the HomeManager REST backend:
// request plumbing, bearer auth with refresh-on-401, reachability
// tracking, and response-shape normalization.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/retry"
)

// RefreshFunc obtains a fresh access token. The token manager installs one
// via SetRefreshHook; it must be safe for concurrent calls.
type RefreshFunc func(ctx context.Context) (string, error)

// Client is the HTTP client for the backend API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	online    bool
	authToken string
	orgID     string

	refreshHook RefreshFunc
	logoutHook  func()
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		online:      true,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token for subsequent requests. An empty
// token clears the Authorization header.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current bearer token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// SetOrganization sets the organization scoping header for subsequent
// requests. An empty id clears it.
func (c *Client) SetOrganization(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orgID = id
}

// SetRefreshHook installs the token refresh callback used by the
// 401-retry path.
func (c *Client) SetRefreshHook(fn RefreshFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshHook = fn
}

// SetLogoutHook installs the forced-logout callback invoked when a 401
// cannot be recovered by a refresh.
func (c *Client) SetLogoutHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutHook = fn
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.orgID != "" {
		req.Header.Set("X-Organization-ID", c.orgID)
	}
}

// IsOnline returns true if the server was reachable on the last request.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()
	if changed {
		if online {
			logging.Info("server is back online")
		} else {
			logging.Warn("server is unreachable")
		}
	}
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	c.setOnline(true)
	return nil
}

// DoJSON performs an authenticated JSON request. Transport failures and
// 5xx responses are retried with backoff; a 401 triggers exactly one token
// refresh and replay before giving up. Non-2xx responses come back as
// *APIError with the server payload attached.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	err := c.doOnce(ctx, method, path, query, payload, dest)

	// Refresh-and-replay, once per request.
	if StatusOf(err) == http.StatusUnauthorized {
		c.mu.RLock()
		refresh := c.refreshHook
		logout := c.logoutHook
		c.mu.RUnlock()

		if refresh == nil {
			return err
		}

		newToken, refreshErr := refresh(ctx)
		if refreshErr != nil {
			logging.Warn("token refresh after 401 failed", zap.Error(refreshErr))
			if logout != nil {
				logout()
			}
			return err
		}
		c.SetAuthToken(newToken)
		return c.doOnce(ctx, method, path, query, payload, dest)
	}

	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, payload []byte, dest any) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.setOnline(false)
			return retry.Retryable(fmt.Errorf("%w: %v", ErrUnreachable, err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			c.setOnline(false)
			return retry.Retryable(&APIError{Status: resp.StatusCode, Payload: data})
		}
		c.setOnline(true)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Payload: data}
		}

		if dest != nil && len(data) > 0 {
			if err := json.Unmarshal(data, dest); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
		}
		return nil
	})
}

// doJSONNoReplay is DoJSON without the refresh-on-401 path. The auth
// endpoints use it so a rejected refresh token cannot recurse into
// another refresh.
func (c *Client) doJSONNoReplay(ctx context.Context, method, path string, body, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}
	return c.doOnce(ctx, method, path, nil, payload, dest)
}

// GetJSON performs an authenticated GET and decodes the response.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	return c.DoJSON(ctx, http.MethodGet, path, query, nil, dest)
}

// GetRaw performs an authenticated GET and returns the raw response body.
func (c *Client) GetRaw(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.DoJSON(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
