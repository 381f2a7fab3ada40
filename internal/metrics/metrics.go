// Package metrics exposes Prometheus collectors for the mail cache and
// the assistant. They register with the default registry and are served
// only when a debug metrics address is configured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache-first reads by result (hit, miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailassist_cache_lookups_total",
			Help: "Cache-first lookups by operation and result",
		},
		[]string{"operation", "result"},
	)

	// CacheFallbacks counts gateway failures answered from the cache.
	CacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailassist_cache_fallbacks_total",
			Help: "Gateway failures served from the local cache",
		},
		[]string{"operation"},
	)

	// SyncedMessages counts messages written through by sync.
	SyncedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailassist_synced_messages_total",
			Help: "Messages written to the cache by sync",
		},
	)

	// GatewayDuration tracks provider call latency in seconds.
	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailassist_gateway_duration_seconds",
			Help:    "Mailbox provider call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"provider", "operation", "status"},
	)

	// AssistantRequests counts assistant operations by outcome.
	AssistantRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailassist_assistant_requests_total",
			Help: "Assistant requests by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// ObserveGateway records one provider call.
func ObserveGateway(provider, operation string, err error, duration time.Duration) {
	GatewayDuration.WithLabelValues(provider, operation, status(err)).Observe(duration.Seconds())
}

// RecordAssistant records one assistant request.
func RecordAssistant(operation string, err error) {
	AssistantRequests.WithLabelValues(operation, status(err)).Inc()
}

// RecordLookup records a cache-first read.
func RecordLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(operation, result).Inc()
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
