// Package resource applies the uniform cache-or-network fetch policy to
// every domain resource, and routes mutations through the offline queue
// when the network is down.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/api"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/metrics"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/netmon"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/queue"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/store"
)

// ErrNoCachedData is returned when a fetch runs offline with nothing
// cached under the resource's key.
var ErrNoCachedData = errors.New("No cached data available while offline")

// ErrQueuedOffline is attached to mutation results that were deferred to
// the offline queue.
var ErrQueuedOffline = errors.New("action queued while offline")

// Engine bundles the collaborators every resource accessor needs.
type Engine struct {
	Client *api.Client
	Cache  *store.Router
	Net    *netmon.Monitor
	Queue  *queue.Queue
}

// NewEngine creates a resource engine.
func NewEngine(client *api.Client, cache *store.Router, net *netmon.Monitor, q *queue.Queue) *Engine {
	return &Engine{Client: client, Cache: cache, Net: net, Queue: q}
}

// RawResult is the undecoded server payload returned by mutations.
type RawResult = json.RawMessage

// Result is the uniform outcome of a fetch or mutate call.
type Result[T any] struct {
	Success       bool
	Data          T
	Err           error
	FromCache     bool
	OfflineQueued bool
	Pagination    *api.Pagination
}

// fetch applies the four-step fetch policy:
//
//  1. Unless forceRefresh, and whenever offline, serve from cache if a
//     value exists — no network contact.
//  2. Online: hit the network, write the result through the cache
//     (best-effort), return it.
//  3. Network failure: fall back to cache, attaching the error; no cache
//     means the failure is surfaced.
//  4. Offline with no cache: fixed "no cached data" failure.
func fetch[T any](ctx context.Context, e *Engine, name, key string, forceRefresh bool, fn func(context.Context) (T, *api.Pagination, error)) Result[T] {
	offline := e.Net.Offline()

	if (offline || !forceRefresh) && e.Cache.Enabled() {
		var cached T
		if e.Cache.Get(key, &cached) {
			metrics.RecordResourceFetch(name, "cache")
			return Result[T]{Success: true, Data: cached, FromCache: true}
		}
	}

	if !offline {
		data, pagination, err := fn(ctx)
		if err == nil {
			e.Cache.Put(key, data)
			metrics.RecordResourceFetch(name, "network")
			return Result[T]{Success: true, Data: data, Pagination: pagination}
		}

		logging.Warn("network fetch failed, trying cache",
			zap.String("resource", name),
			zap.Error(err),
		)

		var cached T
		if e.Cache.Get(key, &cached) {
			metrics.RecordResourceFetch(name, "cache")
			return Result[T]{Success: true, Data: cached, FromCache: true, Err: err}
		}

		metrics.RecordResourceFetch(name, "error")
		return Result[T]{Err: err}
	}

	metrics.RecordResourceFetch(name, "error")
	return Result[T]{Err: ErrNoCachedData}
}

// list is fetch specialized for paginated collection endpoints. The
// cached fallback is always the unfiltered first page; filters and
// pagination apply to network fetches only.
func list[T any](ctx context.Context, e *Engine, name, key, path string, forceRefresh bool, opts api.ListOptions) Result[[]T] {
	return fetch(ctx, e, name, key, forceRefresh, func(ctx context.Context) ([]T, *api.Pagination, error) {
		page, err := api.FetchList[T](ctx, e.Client, path, opts)
		if err != nil {
			return nil, nil, err
		}
		return page.Results, page.Pagination, nil
	})
}

// detail is fetch specialized for single-object endpoints.
func detail[T any](ctx context.Context, e *Engine, name, key, path string, forceRefresh bool) Result[T] {
	return fetch(ctx, e, name, key, forceRefresh, func(ctx context.Context) (T, *api.Pagination, error) {
		var out T
		err := e.Client.GetJSON(ctx, path, nil, &out)
		return out, nil, err
	})
}

// mutate executes a write against the backend, or defers it to the
// offline queue when the network is down. Queued mutations report a soft
// failure carrying OfflineQueued so callers can distinguish deferral from
// rejection.
func (e *Engine) mutate(ctx context.Context, actionType, method, path string, payload any) Result[RawResult] {
	if e.Net.Offline() {
		e.Queue.Enqueue(actionType, payload)
		return Result[RawResult]{Err: ErrQueuedOffline, OfflineQueued: true}
	}

	var raw json.RawMessage
	if err := e.Client.DoJSON(ctx, method, path, nil, payload, &raw); err != nil {
		return Result[RawResult]{Err: err}
	}
	return Result[RawResult]{Success: true, Data: raw}
}

// post is mutate with the POST method, which covers every queued action
// type the backend currently accepts.
func (e *Engine) post(ctx context.Context, actionType, path string, payload any) Result[RawResult] {
	return e.mutate(ctx, actionType, http.MethodPost, path, payload)
}
