package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/api"
)

type memStore struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]string)}
}

func (m *memStore) GetItem(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memStore) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *memStore) DeleteItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memStore) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key]
}

func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return tok
}

func TestManager_IsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	m := &Manager{now: func() time.Time { return now }}

	tests := []struct {
		name string
		tok  string
		want bool
	}{
		{"empty", "", true},
		{"garbage", "not-a-jwt", true},
		{"no exp claim", mintToken(t, jwt.MapClaims{"sub": "1"}), true},
		{"expired", mintToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), true},
		{"valid", mintToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsExpired(tt.tok); got != tt.want {
				t.Errorf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManager_SetTokens(t *testing.T) {
	s := newMemStore()
	c := api.New(api.Config{BaseURL: "http://localhost"})
	m := NewManager(s, c)

	if err := m.SetTokens("access1", "refresh1"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if s.items[KeyAccess] != "access1" || s.items[KeyRefresh] != "refresh1" {
		t.Errorf("persisted tokens = %v", s.items)
	}
	if c.AuthToken() != "access1" {
		t.Errorf("client bearer = %q", c.AuthToken())
	}

	// Empty refresh keeps the stored one.
	if err := m.SetTokens("access2", ""); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if s.items[KeyRefresh] != "refresh1" {
		t.Errorf("refresh token overwritten: %q", s.items[KeyRefresh])
	}
	if m.Current() != "access2" {
		t.Errorf("Current = %q", m.Current())
	}
}

func TestManager_CurrentFallsBackToStore(t *testing.T) {
	s := newMemStore()
	s.items[KeyAccess] = "persisted-access"
	c := api.New(api.Config{BaseURL: "http://localhost"})
	m := NewManager(s, c)

	if got := m.Current(); got != "persisted-access" {
		t.Errorf("Current = %q, want persisted token", got)
	}
}

func TestManager_ClearTokens(t *testing.T) {
	s := newMemStore()
	c := api.New(api.Config{BaseURL: "http://localhost"})
	m := NewManager(s, c)

	if err := m.SetTokens("access", "refresh"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	m.ClearTokens()

	if len(s.items) != 0 {
		t.Errorf("tokens survived ClearTokens: %v", s.items)
	}
	if m.Current() != "" || c.AuthToken() != "" {
		t.Error("in-memory token survived ClearTokens")
	}
}

func TestManager_Refresh(t *testing.T) {
	var gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token/refresh/" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotRefresh = body["refresh"]
		json.NewEncoder(w).Encode(map[string]string{"access": "new-access", "refresh": "rotated-refresh"})
	}))
	defer srv.Close()

	s := newMemStore()
	s.items[KeyRefresh] = "old-refresh"
	c := api.New(api.Config{BaseURL: srv.URL})
	m := NewManager(s, c)

	access, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if access != "new-access" {
		t.Errorf("access = %q", access)
	}
	if gotRefresh != "old-refresh" {
		t.Errorf("server received refresh %q", gotRefresh)
	}
	if s.items[KeyAccess] != "new-access" || s.items[KeyRefresh] != "rotated-refresh" {
		t.Errorf("persisted tokens = %v", s.items)
	}
	if c.AuthToken() != "new-access" {
		t.Errorf("client bearer = %q", c.AuthToken())
	}
}

func TestManager_ConcurrentRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"access": fmt.Sprintf("access-%d", n),
		})
	}))
	defer srv.Close()

	s := newMemStore()
	s.items[KeyRefresh] = "refresh"
	c := api.New(api.Config{BaseURL: srv.URL})
	m := NewManager(s, c)

	results := make(chan string, 2)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			access, err := m.Refresh(context.Background())
			results <- access
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	// No coalescing: each call does its own round trip and succeeds.
	for err := range errs {
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}

	// Last write wins: the persisted token is one of the returned values.
	got := make(map[string]bool)
	for access := range results {
		if access == "" {
			t.Error("Refresh returned an empty access token")
		}
		got[access] = true
	}
	persisted := s.get(KeyAccess)
	if !got[persisted] {
		t.Errorf("persisted access %q is not one of the returned tokens %v", persisted, got)
	}
	if m.Current() != persisted {
		t.Errorf("Current() = %q, persisted = %q", m.Current(), persisted)
	}
}

func TestManager_RefreshWithoutToken(t *testing.T) {
	s := newMemStore()
	c := api.New(api.Config{BaseURL: "http://localhost"})
	m := NewManager(s, c)

	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Refresh error = %v, want ErrNoRefreshToken", err)
	}
}

func TestManager_EnsureValid(t *testing.T) {
	refreshCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
	}))
	defer srv.Close()

	now := time.Now()
	s := newMemStore()
	s.items[KeyRefresh] = "refresh"
	c := api.New(api.Config{BaseURL: srv.URL})
	m := NewManager(s, c)

	// Valid token short-circuits the refresh.
	valid := mintToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	if err := m.SetTokens(valid, ""); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	got, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got != valid || refreshCalls != 0 {
		t.Errorf("EnsureValid refreshed a valid token (calls=%d)", refreshCalls)
	}

	// Expired token triggers exactly one refresh.
	expired := mintToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})
	if err := m.SetTokens(expired, ""); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	got, err = m.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got != "fresh" || refreshCalls != 1 {
		t.Errorf("EnsureValid = %q, refresh calls = %d", got, refreshCalls)
	}
}
