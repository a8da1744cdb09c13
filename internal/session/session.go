// Package session owns the authentication lifecycle: auto-login on
// startup, credential login with an offline fallback, logout cleanup,
// and the network-transition watcher that drains the offline queue.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/api"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/metrics"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/netmon"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/queue"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/resource"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/store"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/token"
)

// Cache keys owned by the session layer.
const (
	KeyUserData       = "user_data"
	KeyOfflineEnabled = "offline_enabled"
	KeyCurrentOrg     = "current_org_id"
)

// State is a snapshot of the session. All fields are value copies; the
// caller may keep it without holding any lock.
type State struct {
	AccessToken           string
	Authenticated         bool
	Loading               bool
	User                  *api.User
	Offline               bool
	OfflineEnabled        bool
	CurrentOrganizationID string
}

// LoginResult reports the outcome of a Login call. Offline is set when
// the login succeeded against the cached profile rather than the server.
type LoginResult struct {
	Success bool
	Offline bool
	Err     error
}

// Manager coordinates tokens, the cached user profile, and the offline
// queue around a single session state. All state mutation goes through
// update so readers always see a consistent snapshot.
type Manager struct {
	client *api.Client
	tokens *token.Manager
	cache  *store.Router
	net    *netmon.Monitor
	queue  *queue.Queue

	mu    sync.Mutex
	state State

	watchOnce sync.Once
	sub       chan netmon.Transition
	done      chan struct{}
}

// NewManager wires the session over the shared client, token manager,
// cache router, network monitor and offline queue. It installs itself
// as the client's logout hook so an unrecoverable refresh failure tears
// the session down.
func NewManager(client *api.Client, tokens *token.Manager, cache *store.Router, net *netmon.Monitor, q *queue.Queue) *Manager {
	m := &Manager{
		client: client,
		tokens: tokens,
		cache:  cache,
		net:    net,
		queue:  q,
		done:   make(chan struct{}),
	}
	m.state.OfflineEnabled = cache.Enabled()
	client.SetLogoutHook(m.Logout)
	return m
}

// update is the sole mutation entry point for the session state.
func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start restores a previous session if one exists: offline preference
// and organization are read back from the cache, then a persisted token
// is validated (refreshing if expired) and the profile re-fetched. When
// the server is unreachable and offline mode holds a cached profile,
// the session comes up authenticated in offline mode instead. It also
// starts the network watcher that drains the queue on reconnect.
func (m *Manager) Start(ctx context.Context) {
	m.update(func(s *State) { s.Loading = true })
	defer m.update(func(s *State) { s.Loading = false })

	var enabled string
	if m.cache.Get(KeyOfflineEnabled, &enabled) {
		m.SetOfflineEnabled(enabled == "true")
	}
	var orgID string
	if m.cache.Get(KeyCurrentOrg, &orgID) && orgID != "" {
		m.SetOrganization(orgID)
	}

	m.startWatcher()

	access, err := m.tokens.EnsureValid(ctx)
	if err != nil {
		logging.Debug("no restorable session", zap.Error(err))
		return
	}

	user, err := m.client.Me(ctx)
	if err != nil {
		if api.IsUnreachable(err) && m.restoreOffline(access) {
			return
		}
		logging.Warn("session restore failed", zap.Error(err))
		m.tokens.ClearTokens()
		return
	}

	m.cache.Put(KeyUserData, user)
	m.update(func(s *State) {
		s.AccessToken = access
		s.Authenticated = true
		s.User = user
		s.Offline = false
	})
	logging.Info("session restored", zap.String("username", user.Username))
}

// restoreOffline brings the session up against the cached profile.
// Returns false when offline mode is disabled or no profile is cached.
func (m *Manager) restoreOffline(access string) bool {
	if !m.cache.Enabled() {
		return false
	}
	var user api.User
	if !m.cache.Get(KeyUserData, &user) {
		return false
	}
	m.update(func(s *State) {
		s.AccessToken = access
		s.Authenticated = true
		s.User = &user
		s.Offline = true
	})
	logging.Info("session restored offline", zap.String("username", user.Username))
	return true
}

// Login authenticates with username and password. When the server is
// unreachable and offline mode has a cached profile for a previously
// authenticated user, the login succeeds in offline mode.
func (m *Manager) Login(ctx context.Context, username, password string) LoginResult {
	pair, err := m.client.LoginTokens(ctx, username, password)
	if err != nil {
		if api.IsUnreachable(err) && m.restoreOffline(m.tokens.Current()) {
			metrics.RecordAuthAttempt("offline")
			return LoginResult{Success: true, Offline: true}
		}
		metrics.RecordAuthAttempt("failure")
		return LoginResult{Err: err}
	}
	if err := m.tokens.SetTokens(pair.Access, pair.Refresh); err != nil {
		logging.Warn("persisting tokens failed", zap.Error(err))
	}

	user, err := m.client.Me(ctx)
	if err != nil {
		metrics.RecordAuthAttempt("failure")
		return LoginResult{Err: err}
	}
	m.cache.Put(KeyUserData, user)
	m.update(func(s *State) {
		s.AccessToken = pair.Access
		s.Authenticated = true
		s.User = user
		s.Offline = false
	})
	metrics.RecordAuthAttempt("success")
	logging.Info("logged in", zap.String("username", user.Username))
	return LoginResult{Success: true}
}

// Logout clears tokens, the cached profile and resource caches, purges
// bulk-store spillover, and resets the session state. Every cleanup
// step is best-effort so a partial failure never blocks the reset.
func (m *Manager) Logout() {
	m.tokens.ClearTokens()
	m.cache.Clear(KeyUserData)
	for _, key := range resource.CleanupKeys {
		m.cache.Clear(key)
	}
	m.cache.Clear(KeyCurrentOrg)
	m.cache.PurgeBulk()
	m.client.SetOrganization("")
	m.update(func(s *State) {
		offlineEnabled := s.OfflineEnabled
		*s = State{OfflineEnabled: offlineEnabled}
	})
	logging.Info("logged out")
}

// SetOfflineEnabled toggles offline caching. The preference persists
// across restarts; disabling does not delete already-cached data.
func (m *Manager) SetOfflineEnabled(enabled bool) {
	if enabled {
		m.cache.PutDirect(KeyOfflineEnabled, "true")
	} else {
		m.cache.PutDirect(KeyOfflineEnabled, "false")
	}
	m.cache.SetEnabled(enabled)
	m.update(func(s *State) { s.OfflineEnabled = enabled })
}

// SetOrganization selects the active organization. The choice is cached
// and sent as a header on every subsequent request.
func (m *Manager) SetOrganization(id string) {
	m.cache.Put(KeyCurrentOrg, id)
	m.client.SetOrganization(id)
	m.update(func(s *State) { s.CurrentOrganizationID = id })
}

// startWatcher subscribes to network transitions: the session mirrors
// connectivity, and a reconnect while authenticated drains the queue.
func (m *Manager) startWatcher() {
	m.watchOnce.Do(func() {
		m.sub = m.net.Subscribe()
		go m.watch()
	})
}

func (m *Manager) watch() {
	for {
		select {
		case <-m.done:
			return
		case tr, ok := <-m.sub:
			if !ok {
				return
			}
			m.update(func(s *State) { s.Offline = !tr.Online })
			if tr.Online && m.Snapshot().Authenticated {
				processed, failed := m.queue.Drain(context.Background())
				if processed > 0 || failed > 0 {
					logging.Info("offline queue drained",
						zap.Int("processed", processed),
						zap.Int("failed", failed))
				}
			}
		}
	}
}

// Close stops the network watcher.
func (m *Manager) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	if m.sub != nil {
		m.net.Unsubscribe(m.sub)
	}
}
