// Package metrics exposes the Prometheus metrics of the registry cache.
// All metrics are defined in their respective packages (cache,
// distribution, registry, upstream) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all packages use.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - registry_cache_hits_total{cache} (Counter): Requests answered from a cache entry
//   - registry_cache_misses_total{cache} (Counter): Requests that ran the handler
//   - registry_cache_passthrough_total{cache} (Counter): Handler responses that were not cacheable
//   - registry_cache_entry_bytes{cache} (Histogram): Size of stored entries
//   - registry_cache_errors_total{operation} (Counter): Store failures by operation
//
// Resolution Metrics (pkg/distribution):
//   - registry_base_path_resolutions_total{outcome} (Counter): cached, exact, pull_through, not_found
//   - registry_pull_through_provisioned_total (Counter): Distributions created below a pull-through distribution
//
// Request Metrics (internal/registry):
//   - registry_http_requests_total{endpoint, status} (Counter): Requests by endpoint and status
//   - registry_http_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - registry_pull_through_fetches_total{endpoint} (Counter): Requests answered from upstream
//
// Upstream Metrics (internal/upstream):
//   - registry_upstream_requests_total{status} (Counter): Upstream attempts by status
//   - registry_upstream_request_duration_seconds (Histogram): Upstream fetch duration, retries included
//   - registry_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - registry_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff before a retry
//   - registry_upstream_retry_exhausted_total{error_class} (Counter): Fetches that used up every attempt
//
// Example Prometheus Queries:
//
//   # Content cache hit rate
//   sum(rate(registry_cache_hits_total{cache="content"}[5m])) /
//   (sum(rate(registry_cache_hits_total{cache="content"}[5m])) + sum(rate(registry_cache_misses_total{cache="content"}[5m])))
//
//   # Unknown repositories
//   rate(registry_base_path_resolutions_total{outcome="not_found"}[5m])
//
//   # P95 request latency per endpoint
//   histogram_quantile(0.95, sum by (le, endpoint) (rate(registry_http_request_duration_seconds_bucket[5m])))
