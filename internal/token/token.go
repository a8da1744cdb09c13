// Package token manages the JWT access/refresh token lifecycle: expiry
// detection, refresh round trips, and persistence in the secure store.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/api"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/metrics"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/store"
)

// Persisted token keys in the secure store.
const (
	KeyAccess  = "token"
	KeyRefresh = "refreshToken"
)

// ErrNoRefreshToken is returned by Refresh when no refresh token is
// persisted.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// Manager holds the access/refresh token pair and keeps the API client's
// bearer token in sync with it.
type Manager struct {
	store  store.SmallStore
	client *api.Client
	now    func() time.Time

	mu     sync.RWMutex
	access string
}

// NewManager creates a token manager and installs its refresh hook on the
// client, enabling the refresh-and-replay path for 401 responses.
func NewManager(s store.SmallStore, c *api.Client) *Manager {
	m := &Manager{store: s, client: c, now: time.Now}
	c.SetRefreshHook(func(ctx context.Context) (string, error) {
		return m.Refresh(ctx)
	})
	return m
}

// Current returns the in-memory access token, falling back to the
// persisted one. The fallback also primes the client's bearer token so a
// restored session authenticates immediately. Empty when no token is
// known.
func (m *Manager) Current() string {
	m.mu.RLock()
	access := m.access
	m.mu.RUnlock()
	if access != "" {
		return access
	}

	persisted, ok, err := m.store.GetItem(KeyAccess)
	if err != nil {
		logging.Warn("read persisted access token failed", zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}

	m.mu.Lock()
	m.access = persisted
	m.mu.Unlock()
	m.client.SetAuthToken(persisted)
	return persisted
}

// SetTokens persists a new token pair and updates the client's bearer
// token. An empty refresh token keeps the previously stored one.
func (m *Manager) SetTokens(access, refresh string) error {
	if err := m.store.SetItem(KeyAccess, access); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if refresh != "" {
		if err := m.store.SetItem(KeyRefresh, refresh); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
	}

	m.mu.Lock()
	m.access = access
	m.mu.Unlock()
	m.client.SetAuthToken(access)
	return nil
}

// ClearTokens removes both tokens from memory, the store, and the client.
// Each deletion is independently best-effort.
func (m *Manager) ClearTokens() {
	if err := m.store.DeleteItem(KeyAccess); err != nil {
		logging.Warn("delete access token failed", zap.Error(err))
	}
	if err := m.store.DeleteItem(KeyRefresh); err != nil {
		logging.Warn("delete refresh token failed", zap.Error(err))
	}
	m.mu.Lock()
	m.access = ""
	m.mu.Unlock()
	m.client.SetAuthToken("")
}

// IsExpired reports whether the token's embedded expiry claim is in the
// past. Tokens that cannot be decoded, or carry no expiry, are treated as
// expired.
func (m *Manager) IsExpired(tok string) bool {
	if tok == "" {
		return true
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		logging.Debug("token decode failed, treating as expired", zap.Error(err))
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(m.now())
}

// Refresh exchanges the persisted refresh token for a new access token,
// persisting the result and updating the client. Concurrent calls each
// perform an independent round trip; last write wins.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	refresh, ok, err := m.store.GetItem(KeyRefresh)
	if err != nil {
		metrics.RecordTokenRefresh(false)
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if !ok || refresh == "" {
		metrics.RecordTokenRefresh(false)
		return "", ErrNoRefreshToken
	}

	pair, err := m.client.RefreshTokens(ctx, refresh)
	if err != nil {
		metrics.RecordTokenRefresh(false)
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if pair.Access == "" {
		metrics.RecordTokenRefresh(false)
		return "", errors.New("refresh response carried no access token")
	}

	if err := m.SetTokens(pair.Access, pair.Refresh); err != nil {
		metrics.RecordTokenRefresh(false)
		return "", err
	}

	metrics.RecordTokenRefresh(true)
	logging.Debug("access token refreshed")
	return pair.Access, nil
}

// EnsureValid returns the current access token, refreshing it first when
// it is missing or expired.
func (m *Manager) EnsureValid(ctx context.Context) (string, error) {
	current := m.Current()
	if current != "" && !m.IsExpired(current) {
		return current, nil
	}
	return m.Refresh(ctx)
}
