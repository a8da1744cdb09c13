package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/api"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/netmon"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/queue"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/retry"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/store"
)

type memSmall struct {
	items map[string]string
}

func (m *memSmall) GetItem(key string) (string, bool, error) {
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memSmall) SetItem(key, value string) error {
	m.items[key] = value
	return nil
}

func (m *memSmall) DeleteItem(key string) error {
	delete(m.items, key)
	return nil
}

func newTestEngine(t *testing.T, baseURL string) *Engine {
	t.Helper()
	bulk, err := store.OpenBulkStoreInMemory()
	if err != nil {
		t.Fatalf("OpenBulkStoreInMemory: %v", err)
	}
	t.Cleanup(func() { bulk.Close() })

	router := store.NewRouter(&memSmall{items: make(map[string]string)}, bulk)
	client := api.New(api.Config{
		BaseURL: baseURL,
		RetryConfig: retry.Config{
			MaxAttempts: 1,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
			Multiplier:  1.0,
		},
	})
	net := netmon.New()
	q := queue.New(router)
	return NewEngine(client, router, net, q)
}

func TestEngine_OnlineFetchWritesCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode([]Property{{ID: 1, Name: "Sunrise Court"}})
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL)
	ctx := context.Background()

	res := e.Properties(ctx, false, api.ListOptions{})
	if res.Err != nil {
		t.Fatalf("Properties: %v", res.Err)
	}
	if res.FromCache {
		t.Error("first fetch served from cache")
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}

	// The network went away; the cached copy must serve.
	e.Net.Notify(false)
	res = e.Properties(ctx, false, api.ListOptions{})
	if res.Err != nil {
		t.Fatalf("offline Properties: %v", res.Err)
	}
	if !res.FromCache {
		t.Error("offline fetch not served from cache")
	}
	if len(res.Data) != 1 || res.Data[0].Name != "Sunrise Court" {
		t.Errorf("cached data = %+v", res.Data)
	}
	if hits.Load() != 1 {
		t.Errorf("offline fetch contacted the server (%d hits)", hits.Load())
	}
}

func TestEngine_CachePreferredUnlessForced(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode([]Tenant{{ID: int(hits.Load())}})
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL)
	ctx := context.Background()

	e.Tenants(ctx, false, api.ListOptions{})
	res := e.Tenants(ctx, false, api.ListOptions{})
	if !res.FromCache || hits.Load() != 1 {
		t.Errorf("second fetch bypassed the cache (hits=%d)", hits.Load())
	}

	res = e.Tenants(ctx, true, api.ListOptions{})
	if res.FromCache || hits.Load() != 2 {
		t.Errorf("forced fetch served from cache (hits=%d)", hits.Load())
	}
	if res.Data[0].ID != 2 {
		t.Errorf("forced fetch returned stale data: %+v", res.Data)
	}
}

func TestEngine_OfflineWithoutCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL)
	e.Net.Notify(false)

	res := e.Tickets(context.Background(), false, api.ListOptions{})
	if !errors.Is(res.Err, ErrNoCachedData) {
		t.Errorf("err = %v, want ErrNoCachedData", res.Err)
	}
	if res.Success {
		t.Error("result reports success")
	}
	if hits.Load() != 0 {
		t.Errorf("offline fetch contacted the server (%d hits)", hits.Load())
	}
}

func TestEngine_NetworkFailureFallsBackToCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Payment{{ID: 9}})
	}))

	e := newTestEngine(t, srv.URL)
	ctx := context.Background()

	if res := e.Payments(ctx, false, api.ListOptions{}); res.Err != nil {
		t.Fatalf("seed fetch: %v", res.Err)
	}

	srv.Close() // server vanishes, but the monitor still believes online

	res := e.Payments(ctx, true, api.ListOptions{})
	if !res.FromCache {
		t.Fatal("failure fallback did not serve from cache")
	}
	if !res.Success {
		t.Error("fallback result not marked successful")
	}
	if res.Err == nil {
		t.Error("fallback result carries no error")
	}
	if len(res.Data) != 1 || res.Data[0].ID != 9 {
		t.Errorf("fallback data = %+v", res.Data)
	}
}

func TestEngine_NetworkFailureWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := newTestEngine(t, srv.URL)

	res := e.Notices(context.Background(), true, api.ListOptions{})
	if res.Success {
		t.Error("result reports success with no server and no cache")
	}
	if !api.IsUnreachable(res.Err) {
		t.Errorf("err = %v, want unreachable", res.Err)
	}
}

func TestEngine_DetailFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/properties/properties/7/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Property{ID: 7, Name: "Acacia Heights"})
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL)
	ctx := context.Background()

	res := e.PropertyDetail(ctx, 7, false)
	if res.Err != nil {
		t.Fatalf("PropertyDetail: %v", res.Err)
	}
	if res.Data.Name != "Acacia Heights" {
		t.Errorf("data = %+v", res.Data)
	}

	// Cached under its own per-id key.
	e.Net.Notify(false)
	res = e.PropertyDetail(ctx, 7, false)
	if !res.FromCache || res.Data.ID != 7 {
		t.Errorf("offline detail = %+v", res)
	}
}

func TestEngine_MutationQueuedOffline(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]int{"id": 100})
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL)
	e.RegisterReplayHandlers()
	ctx := context.Background()

	e.Net.Notify(false)
	res := e.CreateTicket(ctx, map[string]string{"title": "broken lock"})
	if !res.OfflineQueued {
		t.Fatal("offline mutation not queued")
	}
	if !errors.Is(res.Err, ErrQueuedOffline) {
		t.Errorf("err = %v, want ErrQueuedOffline", res.Err)
	}
	if hits.Load() != 0 {
		t.Error("offline mutation contacted the server")
	}
	if len(e.Queue.Pending()) != 1 {
		t.Fatalf("pending = %d, want 1", len(e.Queue.Pending()))
	}

	// Reconnect and drain: the queued action replays against the API.
	e.Net.Notify(true)
	processed, failed := e.Queue.Drain(ctx)
	if processed != 1 || failed != 0 {
		t.Errorf("Drain = (%d, %d)", processed, failed)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits after drain = %d, want 1", hits.Load())
	}
	if len(e.Queue.Pending()) != 0 {
		t.Error("queue not cleared after drain")
	}
}

func TestEngine_MutationOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]int{"id": 55})
	}))
	defer srv.Close()

	e := newTestEngine(t, srv.URL)

	res := e.CreatePayment(context.Background(), map[string]any{"amount": 1200})
	if res.Err != nil {
		t.Fatalf("CreatePayment: %v", res.Err)
	}
	if !res.Success || res.OfflineQueued {
		t.Errorf("result = %+v", res)
	}
	var out map[string]int
	if err := json.Unmarshal(res.Data, &out); err != nil || out["id"] != 55 {
		t.Errorf("data = %s", res.Data)
	}
}
