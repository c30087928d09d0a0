package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_upstream_requests_total",
		Help: "Upstream registry requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_upstream_request_duration_seconds",
		Help:    "Upstream registry request duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_upstream_retries_total",
		Help: "Upstream retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_upstream_retry_backoff_seconds",
		Help:    "Backoff before an upstream retry by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_upstream_retry_exhausted_total",
		Help: "Upstream requests that used up every attempt by error class",
	}, []string{"error_class"})
)
