package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the backing key-value store of the cache.
//
// Entries live inside a partition named by their base key; an empty base
// key stores the entry on its own. Each method is atomic on its own, but no
// sequence of calls is. Values are opaque to the store.
type Store interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key, baseKey string) ([]byte, error)

	// Set stores value under key. A positive ttl bounds the lifetime of the
	// partition in the store; entries still carry their own expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, baseKey string) error

	// Delete removes a single entry.
	Delete(ctx context.Context, key, baseKey string) error

	// Exists reports whether the partition holds any entry.
	Exists(ctx context.Context, baseKey string) (bool, error)

	// Invalidate drops the whole partition.
	Invalidate(ctx context.Context, baseKey string) error
}
