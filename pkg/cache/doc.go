// Package cache provides the response cache that sits in front of the
// container registry handlers.
//
// The package is built from a few small pieces:
//
// - KeyDeriver computes a deterministic key from selected request attributes
// - Encode/Decode convert handler responses to stored entries and back
// - Entry carries its own absolute expiry, independent of the backing store
// - Store is the narrow adapter over the shared key-value store (Redis or LevelDB)
// - ContentCache, APICache and the static index cache wire everything into request handling
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	ttl := 10 * time.Minute
//	content := cache.NewContentCache(cache.NewRedisStore(redisClient), cache.Options{
//		TTL:    &ttl,
//		Logger: logging.NewLogger("content-cache"),
//	})
//
//	resp, err := content.Serve(ctx, req, baseKey, func(ctx context.Context, r *http.Request) (cache.Response, error) {
//		return cache.File("/var/lib/registry/blobs/sha256:abc"), nil
//	})
//
// # Entries
//
// Handlers return one of the response shapes of this package. Redirects,
// files, structured (JSON) bodies and raw bodies are cacheable; streamed
// bodies and error statuses pass through without being stored. Every
// response leaving a cache carries the X-PULP-CACHE header with HIT or MISS.
//
// # Partitions
//
// Entries are stored under a base key (the distribution's partition). All
// entries of a distribution are dropped together with Store.Invalidate.
//
// # Metrics
//
//   - registry_cache_hits_total{cache} - Cache hits
//   - registry_cache_misses_total{cache} - Cache misses
//   - registry_cache_passthrough_total{cache} - Responses served without being stored
//   - registry_cache_entry_bytes{cache} - Size of stored entries
//   - registry_cache_errors_total{operation} - Store operation errors
package cache
