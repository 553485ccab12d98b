// Package metrics is the reference for every Prometheus metric the intervu
// client exports. The metrics themselves live in their packages (cache,
// client, ratelimit, spa) and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer the promauto metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names of the exported metric families.
const (
	CacheHits           = "intervu_cache_hits_total"
	CacheMisses         = "intervu_cache_misses_total"
	CacheFetches        = "intervu_cache_fetches_total"
	CacheFetchErrors    = "intervu_cache_fetch_errors_total"
	CacheEntries        = "intervu_cache_entries"
	CacheListeners      = "intervu_cache_listeners"
	CacheListenerPanics = "intervu_cache_listener_panics_total"

	GraphQLRequests       = "intervu_graphql_requests_total"
	GraphQLDuration       = "intervu_graphql_request_duration_seconds"
	GraphQLErrors         = "intervu_graphql_errors_total"
	GraphQLRetries        = "intervu_graphql_retries_total"
	GraphQLRetryBackoff   = "intervu_graphql_retry_backoff_seconds"
	GraphQLRetryExhausted = "intervu_graphql_retry_exhausted_total"

	UpstreamRemaining = "intervu_upstream_rate_limit_remaining"
	UpstreamBlocks    = "intervu_upstream_rate_limit_blocks_total"
	UpstreamThrottles = "intervu_upstream_rate_limit_throttles_total"

	SPARequests = "intervu_spa_requests_total"
)

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - intervu_cache_hits_total{tier} (Counter): Hits by tier (fresh, stale)
//   - intervu_cache_misses_total (Counter): Gets that found no usable entry
//   - intervu_cache_fetches_total{mode} (Counter): Upstream fetches (sync, background)
//   - intervu_cache_fetch_errors_total{mode} (Counter): Failed fetches by mode
//   - intervu_cache_entries (Gauge): Entries currently cached
//   - intervu_cache_listeners (Gauge): Registered listeners
//   - intervu_cache_listener_panics_total (Counter): Listeners that panicked
//
// Request Metrics (pkg/client):
//   - intervu_graphql_requests_total{operation, status} (Counter): Requests by operation and HTTP status
//   - intervu_graphql_request_duration_seconds{operation} (Histogram): Duration including retries
//   - intervu_graphql_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, protocol, graphql)
//
// Retry Metrics (pkg/client):
//   - intervu_graphql_retries_total{error_class} (Counter): Retry attempts by error class
//   - intervu_graphql_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - intervu_graphql_retry_exhausted_total{error_class} (Counter): Queries that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - intervu_upstream_rate_limit_remaining (Gauge): Last advertised budget
//   - intervu_upstream_rate_limit_blocks_total (Counter): Requests blocked below the critical threshold
//   - intervu_upstream_rate_limit_throttles_total (Counter): Requests delayed below the warning threshold
//
// SPA Metrics (pkg/spa):
//   - intervu_spa_requests_total{kind, route} (Counter): Files, index fallbacks and missing builds
//
// Example Prometheus Queries:
//
//   # Fresh hit rate
//   sum(rate(intervu_cache_hits_total{tier="fresh"}[5m])) /
//   (sum(rate(intervu_cache_hits_total[5m])) + sum(rate(intervu_cache_misses_total[5m])))
//
//   # Background refresh failures
//   rate(intervu_cache_fetch_errors_total{mode="background"}[5m])
//
//   # Upstream budget running low
//   intervu_upstream_rate_limit_remaining < 20
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(intervu_graphql_request_duration_seconds_bucket[5m]))
