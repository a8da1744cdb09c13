// Package queue implements the durable FIFO queue of mutations deferred
// while offline, drained when connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/metrics"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/store"
)

// Key is the cache key the serialized queue is persisted under.
const Key = "offline_action_queue"

// Action is one deferred mutation.
type Action struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"data"`
	EnqueuedAt time.Time       `json:"timestamp"`
}

// Handler replays one action type against the backend during drain.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Queue is the persisted offline action queue. The whole queue is stored
// as a single JSON list; Enqueue does a read-modify-write under a lock.
type Queue struct {
	router *store.Router

	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates a queue over the cache router.
func New(router *store.Router) *Queue {
	return &Queue{
		router:   router,
		handlers: make(map[string]Handler),
	}
}

// Register installs the replay handler for an action type. Actions with
// no registered handler are logged and skipped during drain.
func (q *Queue) Register(actionType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[actionType] = h
}

// Enqueue appends an action to the persisted queue. It reports "queued"
// unconditionally once the write completed: the router swallows storage
// failures, so a failed write is indistinguishable from a successful one
// here.
func (q *Queue) Enqueue(actionType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("serialize offline action failed",
			zap.String("type", actionType),
			zap.Error(err),
		)
		data = []byte("null")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	actions := q.load()
	actions = append(actions, Action{
		Type:       actionType,
		Payload:    data,
		EnqueuedAt: time.Now(),
	})
	q.router.Put(Key, actions)

	metrics.SetOfflineQueueDepth(len(actions))
	logging.Info("action queued for replay",
		zap.String("type", actionType),
		zap.Int("depth", len(actions)),
	)
}

// Pending returns the queued actions in enqueue order.
func (q *Queue) Pending() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Drain replays all queued actions in enqueue order, then clears the
// persisted queue. Individual failures are reported and do not block the
// remainder; replay is best-effort, not exactly-once.
func (q *Queue) Drain(ctx context.Context) (processed, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions := q.load()
	if len(actions) == 0 {
		return 0, 0
	}

	logging.Info("draining offline action queue", zap.Int("pending", len(actions)))

	for _, action := range actions {
		handler, ok := q.handlers[action.Type]
		if !ok {
			logging.Info("processing offline action",
				zap.String("type", action.Type),
				zap.Time("enqueued_at", action.EnqueuedAt),
			)
			metrics.RecordDrainedAction("skipped")
			processed++
			continue
		}

		if err := handler(ctx, action.Payload); err != nil {
			logging.Error("offline action replay failed",
				zap.String("type", action.Type),
				zap.Error(err),
			)
			metrics.RecordDrainedAction("failed")
			failed++
			continue
		}
		metrics.RecordDrainedAction("ok")
		processed++
	}

	q.router.Put(Key, []Action{})
	metrics.SetOfflineQueueDepth(0)
	return processed, failed
}

// load reads the persisted queue. Must be called with the lock held.
func (q *Queue) load() []Action {
	var actions []Action
	if !q.router.Get(Key, &actions) {
		return nil
	}
	return actions
}
