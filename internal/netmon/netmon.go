// Package netmon tracks connectivity and publishes de-duplicated
// online/offline transitions.
package netmon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/logging"
	"github.com/AmbeyiBrian/HomeManager-sub002/internal/metrics"
)

// Transition is delivered to subscribers when the connectivity flag flips.
type Transition struct {
	Online bool
	At     time.Time
}

// Prober checks whether the server is reachable. The API client's Ping
// satisfies this.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor tracks the current online/offline flag. It is fed by Notify
// (the platform connectivity signal) and, optionally, by a periodic
// reachability probe. Subscribers only see transitions, not every signal
// firing.
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	subscribers map[chan Transition]struct{}
	probeCancel context.CancelFunc
}

// New creates a monitor. Connectivity starts optimistic (online) until a
// signal or probe says otherwise, matching the HTTP client's assumption.
func New() *Monitor {
	return &Monitor{
		online:      true,
		subscribers: make(map[chan Transition]struct{}),
	}
}

// Offline reports the current offline flag.
func (m *Monitor) Offline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.online
}

// Notify feeds a connectivity signal into the monitor. Repeated signals
// with the same value are ignored; only changes produce a transition.
func (m *Monitor) Notify(connected bool) {
	m.mu.Lock()
	if m.online == connected {
		m.mu.Unlock()
		return
	}
	m.online = connected
	t := Transition{Online: connected, At: time.Now()}
	for ch := range m.subscribers {
		select {
		case ch <- t:
		default:
			// Drop for slow consumers
		}
	}
	m.mu.Unlock()

	metrics.RecordNetworkTransition(connected)
	if connected {
		logging.Info("network is back online")
	} else {
		logging.Warn("network is offline")
	}
}

// Subscribe registers a transition channel. The caller must Unsubscribe
// when done.
func (m *Monitor) Subscribe() chan Transition {
	ch := make(chan Transition, 8)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unsubscribing
// a channel that is already gone (after Close, or a second Unsubscribe)
// is a no-op.
func (m *Monitor) Unsubscribe(ch chan Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[ch]; !ok {
		return
	}
	delete(m.subscribers, ch)
	close(ch)
}

// StartProbe runs a periodic reachability check against p until ctx is
// cancelled. Each probe result is fed through Notify, so subscribers still
// only see de-duplicated transitions.
func (m *Monitor) StartProbe(ctx context.Context, p Prober, interval time.Duration) {
	if interval <= 0 {
		return
	}

	probeCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.probeCancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				err := p.Ping(probeCtx)
				m.Notify(err == nil)
			case <-probeCtx.Done():
				return
			}
		}
	}()

	logging.Info("connectivity probe enabled", zap.Duration("interval", interval))
}

// Close stops the probe and drops all subscribers.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeCancel != nil {
		m.probeCancel()
		m.probeCancel = nil
	}
	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
}
