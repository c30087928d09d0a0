package cache

import (
	"context"
	"net/http"
)

// APICache caches structured registry API responses. Structured bodies are
// always rendered as application/json before they are stored.
type APICache struct {
	engine
	baseKey string
}

// NewAPICache creates an API cache keyed on path, method, host and Accept
// header.
func NewAPICache(store Store, opts Options) *APICache {
	c := &APICache{
		engine: newEngine("api", store, NewKeyDeriver(APIKeyAttributes...), opts),
	}
	c.prepare = renderJSON
	return c
}

func renderJSON(resp Response) {
	if s, ok := resp.(*StructuredResponse); ok && !s.rendered {
		s.Header().Set("Content-Type", "application/json")
	}
}

// Serve returns the response for r. An empty baseKey falls back to the
// cache's own partition, if it has one.
func (c *APICache) Serve(ctx context.Context, r *http.Request, baseKey string, next Handler) (Response, error) {
	if baseKey == "" {
		baseKey = c.baseKey
	}
	return c.serve(ctx, r, baseKey, next)
}

// Handler returns an http.Handler serving next through the cache.
func (c *APICache) Handler(baseKey BaseKeyFunc, next Handler) http.Handler {
	if baseKey == nil && c.baseKey != "" {
		fixed := c.baseKey
		baseKey = func(context.Context, *http.Request) (string, error) { return fixed, nil }
	}
	return c.handler(baseKey, next, false)
}

// Invalidate drops every entry of the partition.
func (c *APICache) Invalidate(ctx context.Context, baseKey string) error {
	if baseKey == "" {
		baseKey = c.baseKey
	}
	return c.store.Invalidate(ctx, baseKey)
}
