// Package metrics exposes the Prometheus metrics of the request layer.
// All metrics are defined in their respective packages (request, dataset,
// store) and registered via promauto on the default registry.
//
// This package provides the HTTP handler and a reference for all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry all metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/request):
//   - ya_requests_total{outcome} (Counter): Dispatched requests by outcome
//     (success, business_error, transport_error, aborted, ignored)
//   - ya_request_duration_seconds{outcome} (Histogram): Request duration by outcome
//   - ya_duplicate_requests_total{policy} (Counter): Duplicates ignored or aborted
//   - ya_mock_retries_total{result} (Counter): Development fallbacks to the mock backend
//   - ya_inflight_requests (Gauge): Requests currently in flight
//
// Dataset Metrics (pkg/dataset):
//   - ya_dataset_fetches_total{source} (Counter): Calls answered by network, cache or a shared call
//   - ya_dataset_recorded_responses_total (Counter): Responses written to histories
//   - ya_dataset_mirror_errors_total{operation} (Counter): Hydrate and write failures
//
// Store Metrics (pkg/store):
//   - ya_store_hits_total{backend} (Counter)
//   - ya_store_misses_total{backend} (Counter)
//   - ya_store_errors_total{backend, operation} (Counter)
//   - ya_store_written_bytes_total{backend} (Counter)
//
// Example Prometheus Queries:
//
//   # Dataset Cache Hit Rate
//   sum(rate(ya_dataset_fetches_total{source="cache"}[5m])) /
//   sum(rate(ya_dataset_fetches_total[5m]))
//
//   # Business Error Rate
//   rate(ya_requests_total{outcome="business_error"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ya_request_duration_seconds_bucket[5m]))
