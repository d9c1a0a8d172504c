package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries above the slow-query threshold",
		},
		[]string{"table"},
	)

	FeedEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_published_count",
			Help: "Total number of change-feed events published",
		},
		[]string{"table", "kind"},
	)

	FeedEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_consumed_count",
			Help: "Total number of change-feed events consumed",
		},
		[]string{"table", "kind", "status"}, // status: applied, skipped, failed
	)

	FeedConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_consume_latency_ms",
			Help:    "Change-feed message handling latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	SyncResyncCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_resync_count",
			Help: "Total number of full collection re-fetches by the sync layer",
		},
		[]string{"table", "reason"}, // reason: initial, focus, manual
	)

	StatsCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_cache_lookup_count",
			Help: "Project stats cache lookups",
		},
		[]string{"kind", "outcome"}, // outcome: hit, miss, error
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func IncrementSlowQuery(table string) {
	SlowQueryCount.WithLabelValues(table).Inc()
}

func IncrementFeedPublished(table, kind string) {
	FeedEventsPublished.WithLabelValues(table, kind).Inc()
}

func IncrementFeedConsumed(table, kind, status string) {
	FeedEventsConsumed.WithLabelValues(table, kind, status).Inc()
}

func RecordFeedConsumeLatency(routingKey, queue string, duration time.Duration) {
	FeedConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func IncrementSyncResync(table, reason string) {
	SyncResyncCount.WithLabelValues(table, reason).Inc()
}

func IncrementStatsCacheLookup(kind, outcome string) {
	StatsCacheLookups.WithLabelValues(kind, outcome).Inc()
}
