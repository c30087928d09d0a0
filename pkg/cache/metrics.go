package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by cache ("content", "api", "index")
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_cache_hits_total",
			Help: "Total number of registry cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses tracks cache misses by cache
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_cache_misses_total",
			Help: "Total number of registry cache misses",
		},
		[]string{"cache"},
	)

	// PassThrough tracks responses served without being stored
	PassThrough = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_cache_passthrough_total",
			Help: "Total number of responses that were not cacheable",
		},
		[]string{"cache"},
	)

	// EntryBytes tracks the size of stored entries
	EntryBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registry_cache_entry_bytes",
			Help:    "Size of cache entries written to the store",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8),
		},
		[]string{"cache"},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "exists", "invalidate"
	)
)
