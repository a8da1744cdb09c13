// Package metrics provides Prometheus metrics for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	cacheReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homesync_cache_reads_total",
			Help: "Total cache reads by outcome",
		},
		[]string{"outcome"}, // hit, miss
	)

	cacheWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homesync_cache_writes_total",
			Help: "Total cache writes by tier and outcome",
		},
		[]string{"tier", "outcome"}, // secure/bulk, ok/error/skipped
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homesync_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"}, // success, failure, offline
	)

	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homesync_token_refreshes_total",
			Help: "Total token refresh attempts",
		},
		[]string{"result"},
	)

	// Fetch policy metrics
	resourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homesync_resource_fetches_total",
			Help: "Total resource fetches by source",
		},
		[]string{"resource", "source"}, // network, cache, error
	)

	// Offline queue metrics
	offlineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homesync_offline_queue_depth",
			Help: "Number of pending offline actions",
		},
	)

	offlineActionsDrained = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homesync_offline_actions_drained_total",
			Help: "Offline actions processed during drain",
		},
		[]string{"result"}, // ok, failed, skipped
	)

	// Network monitor metrics
	networkTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homesync_network_transitions_total",
			Help: "Connectivity transitions observed",
		},
		[]string{"to"}, // online, offline
	)
)

// RecordCacheRead records a cache read outcome.
func RecordCacheRead(hit bool) {
	if hit {
		cacheReadsTotal.WithLabelValues("hit").Inc()
	} else {
		cacheReadsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordCacheWrite records a cache write for a storage tier.
func RecordCacheWrite(tier, outcome string) {
	cacheWritesTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordTokenRefresh records a token refresh attempt.
func RecordTokenRefresh(success bool) {
	if success {
		tokenRefreshesTotal.WithLabelValues("success").Inc()
	} else {
		tokenRefreshesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordResourceFetch records where a resource fetch was served from.
func RecordResourceFetch(resource, source string) {
	resourceFetchesTotal.WithLabelValues(resource, source).Inc()
}

// SetOfflineQueueDepth sets the current offline queue depth.
func SetOfflineQueueDepth(n int) {
	offlineQueueDepth.Set(float64(n))
}

// RecordDrainedAction records the outcome of one replayed offline action.
func RecordDrainedAction(result string) {
	offlineActionsDrained.WithLabelValues(result).Inc()
}

// RecordNetworkTransition records a connectivity transition.
func RecordNetworkTransition(online bool) {
	if online {
		networkTransitionsTotal.WithLabelValues("online").Inc()
	} else {
		networkTransitionsTotal.WithLabelValues("offline").Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
