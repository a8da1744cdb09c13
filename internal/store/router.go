package store

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/metrics"
)

// RouteThreshold is the serialized size above which values are routed to
// the bulk store. Kept below the secure store's 2048-byte ceiling so the
// redirect marker always fits.
const RouteThreshold = 2000

// BulkKeyPrefix prefixes every bulk-store key written by the router.
const BulkKeyPrefix = "async_"

// SmallStore is the size-limited, higher-security backing store.
type SmallStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	DeleteItem(key string) error
}

// LargeStore is the unconstrained backing store.
type LargeStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	MultiRemove(keys []string) error
	GetAllKeys() ([]string, error)
}

// largeRef is the redirect marker the small store holds for values whose
// payload lives in the bulk store.
type largeRef struct {
	IsLargeRef bool      `json:"isLargeRef"`
	Timestamp  time.Time `json:"timestamp"`
}

// Router decides, per key/value pair, which backing store holds the
// payload, and reassembles values transparently on read.
//
// Writes are best-effort: every failure is logged and swallowed, so
// callers cannot tell a failed write from an absent value. LastError
// exposes the most recent swallowed error as a health signal.
type Router struct {
	small   SmallStore
	bulk    LargeStore
	enabled atomic.Bool

	mu      sync.Mutex
	lastErr error
}

// NewRouter creates a cache router over the two backing stores. Offline
// caching starts enabled.
func NewRouter(small SmallStore, bulk LargeStore) *Router {
	r := &Router{small: small, bulk: bulk}
	r.enabled.Store(true)
	return r
}

// SetEnabled flips the process-wide offline-caching gate. Reads are always
// attempted regardless of the gate; only writes are skipped.
func (r *Router) SetEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// Enabled reports whether cache writes are currently allowed.
func (r *Router) Enabled() bool {
	return r.enabled.Load()
}

// Put serializes value and stores it under key, routing oversized payloads
// to the bulk store behind a redirect marker. Put never returns an error.
func (r *Router) Put(key string, value any) {
	if !r.enabled.Load() {
		metrics.RecordCacheWrite("secure", "skipped")
		return
	}
	r.put(key, value)
}

// PutDirect writes key regardless of the offline-caching gate. It exists
// for control keys, such as the persisted gate preference itself, that
// must be writable while caching is disabled.
func (r *Router) PutDirect(key string, value any) {
	r.put(key, value)
}

func (r *Router) put(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		r.swallow("serialize cache value", key, err)
		return
	}

	if len(data) > RouteThreshold {
		if err := r.bulk.SetItem(BulkKeyPrefix+key, string(data)); err != nil {
			r.swallow("write bulk store", key, err)
			metrics.RecordCacheWrite("bulk", "error")
			return
		}
		metrics.RecordCacheWrite("bulk", "ok")

		marker, err := json.Marshal(largeRef{IsLargeRef: true, Timestamp: time.Now()})
		if err != nil {
			r.swallow("serialize redirect marker", key, err)
			return
		}
		if err := r.small.SetItem(key, string(marker)); err != nil {
			r.swallow("write redirect marker", key, err)
			metrics.RecordCacheWrite("secure", "error")
			return
		}
		metrics.RecordCacheWrite("secure", "ok")
		return
	}

	if err := r.small.SetItem(key, string(data)); err != nil {
		r.swallow("write secure store", key, err)
		metrics.RecordCacheWrite("secure", "error")
		return
	}
	metrics.RecordCacheWrite("secure", "ok")
}

// Get reads the value for key into dest. It returns false when no value is
// available, whether because nothing was stored or because a read failed.
func (r *Router) Get(key string, dest any) bool {
	raw, ok, err := r.small.GetItem(key)
	if err != nil {
		r.swallow("read secure store", key, err)
		metrics.RecordCacheRead(false)
		return false
	}
	if !ok {
		metrics.RecordCacheRead(false)
		return false
	}

	if isLargeRef(raw) {
		braw, ok, err := r.bulk.GetItem(BulkKeyPrefix + key)
		if err != nil {
			r.swallow("read bulk store", key, err)
			metrics.RecordCacheRead(false)
			return false
		}
		if !ok {
			// Dangling marker: the payload is gone.
			metrics.RecordCacheRead(false)
			return false
		}
		raw = braw
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		r.swallow("deserialize cache value", key, err)
		metrics.RecordCacheRead(false)
		return false
	}
	metrics.RecordCacheRead(true)
	return true
}

// GetRaw reads the serialized payload for key without deserializing.
func (r *Router) GetRaw(key string) (json.RawMessage, bool) {
	var raw json.RawMessage
	if !r.Get(key, &raw) {
		return nil, false
	}
	return raw, true
}

// Clear removes the entry for key from both stores. The small-store entry
// is inspected first so a redirect marker cascades to the bulk store; if
// that inspection fails the small-store delete still runs.
func (r *Router) Clear(key string) {
	raw, ok, err := r.small.GetItem(key)
	if err != nil {
		r.swallow("read secure store", key, err)
	}
	if ok && isLargeRef(raw) {
		if err := r.bulk.RemoveItem(BulkKeyPrefix + key); err != nil {
			r.swallow("remove bulk entry", key, err)
		}
	}
	if err := r.small.DeleteItem(key); err != nil {
		r.swallow("delete secure entry", key, err)
	}
}

// PurgeBulk removes every router-written entry from the bulk store. Used
// by logout to sweep payloads whose markers are already gone.
func (r *Router) PurgeBulk() {
	keys, err := r.bulk.GetAllKeys()
	if err != nil {
		r.swallow("list bulk keys", "", err)
		return
	}
	var stale []string
	for _, k := range keys {
		if strings.HasPrefix(k, BulkKeyPrefix) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := r.bulk.MultiRemove(stale); err != nil {
		r.swallow("purge bulk entries", "", err)
	}
}

// LastError returns the most recent error swallowed by the router, or nil.
// It distinguishes true absence from storage malfunction for callers that
// care; the read/write contracts themselves never surface errors.
func (r *Router) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Router) swallow(op, key string, err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	logging.Error("cache "+op+" failed",
		zap.String("key", key),
		zap.Error(err),
	)
}

// isLargeRef reports whether a raw small-store value is a redirect marker.
func isLargeRef(raw string) bool {
	var ref largeRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return false
	}
	return ref.IsLargeRef
}
