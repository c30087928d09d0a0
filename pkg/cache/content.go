package cache

import (
	"context"
	"net/http"
)

// ContentCache caches the responses of the content app that serves
// manifests and blobs to pulling clients. Cached files are replayed with
// Range support; streamed bodies are never stored.
type ContentCache struct {
	engine
}

// NewContentCache creates a content cache keyed on path, method, host and
// Accept header.
func NewContentCache(store Store, opts Options) *ContentCache {
	return &ContentCache{
		engine: newEngine("content", store, NewKeyDeriver(ContentKeyAttributes...), opts),
	}
}

// Serve returns the response for r, from the cache partition baseKey or
// from next. The returned response carries the X-PULP-CACHE marker.
func (c *ContentCache) Serve(ctx context.Context, r *http.Request, baseKey string, next Handler) (Response, error) {
	return c.serve(ctx, r, baseKey, next)
}

// Handler returns an http.Handler serving next through the cache.
func (c *ContentCache) Handler(baseKey BaseKeyFunc, next Handler) http.Handler {
	return c.handler(baseKey, next, true)
}

// Invalidate drops every entry of the partition.
func (c *ContentCache) Invalidate(ctx context.Context, baseKey string) error {
	return c.store.Invalidate(ctx, baseKey)
}
