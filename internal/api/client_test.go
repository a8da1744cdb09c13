package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 2,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestClient_AuthHeaders(t *testing.T) {
	var gotAuth, gotOrg string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("X-Organization-ID")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RetryConfig: fastRetry()})
	c.SetAuthToken("tok123")
	c.SetOrganization("org-7")

	if err := c.GetJSON(context.Background(), "/users/me/", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotOrg != "org-7" {
		t.Errorf("X-Organization-ID = %q", gotOrg)
	}
}

func TestClient_RefreshAndReplayOn401(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		requests = append(requests, auth)
		if auth != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"token expired"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"id": 1})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RetryConfig: fastRetry()})
	c.SetAuthToken("stale")

	refreshCalls := 0
	c.SetRefreshHook(func(ctx context.Context) (string, error) {
		refreshCalls++
		return "fresh", nil
	})

	var out map[string]int
	if err := c.GetJSON(context.Background(), "/properties/properties/", nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if len(requests) != 2 {
		t.Fatalf("requests = %v, want a 401 then a replay", requests)
	}
	if requests[1] != "Bearer fresh" {
		t.Errorf("replay used %q", requests[1])
	}
	if out["id"] != 1 {
		t.Errorf("out = %v", out)
	}
	if c.AuthToken() != "fresh" {
		t.Errorf("bearer after replay = %q", c.AuthToken())
	}
}

func TestClient_FailedRefreshTriggersLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RetryConfig: fastRetry()})

	refreshCalls := 0
	c.SetRefreshHook(func(ctx context.Context) (string, error) {
		refreshCalls++
		return "", &APIError{Status: http.StatusUnauthorized}
	})
	loggedOut := false
	c.SetLogoutHook(func() { loggedOut = true })

	err := c.GetJSON(context.Background(), "/users/me/", nil, nil)
	if StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("err = %v, want the original 401", err)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", refreshCalls)
	}
	if !loggedOut {
		t.Error("logout hook not invoked")
	}
}

func TestClient_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := New(Config{BaseURL: srv.URL, RetryConfig: fastRetry()})

	err := c.GetJSON(context.Background(), "/properties/properties/", nil, nil)
	if !IsUnreachable(err) {
		t.Fatalf("err = %v, want unreachable", err)
	}
	if c.IsOnline() {
		t.Error("client still reports online after a transport failure")
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RetryConfig: fastRetry()})
	if err := c.GetJSON(context.Background(), "/health/", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if !c.IsOnline() {
		t.Error("client offline after a successful retry")
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"not found"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RetryConfig: fastRetry()})

	err := c.GetJSON(context.Background(), "/properties/properties/999/", nil, nil)
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("status = %d", apiErr.Status)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not be retried)", attempts)
	}
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RetryConfig: fastRetry()})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !c.IsOnline() {
		t.Error("client offline after a successful ping")
	}
}
