package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Handler produces the response for a request on a cache miss.
type Handler func(ctx context.Context, r *http.Request) (Response, error)

// BaseKeyFunc returns the partition a request belongs to.
type BaseKeyFunc func(ctx context.Context, r *http.Request) (string, error)

// ErrorFunc writes an error that prevented a response from being served.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Options configure a cache.
type Options struct {
	// TTL is how long entries stay fresh. nil means entries never expire.
	TTL *time.Duration

	// Logger receives cache events (default: disabled).
	Logger zerolog.Logger

	// OnError writes errors of the HTTP handlers (default: 500 with the error text).
	OnError ErrorFunc

	// Now is the clock (default: time.Now).
	Now func() time.Time
}

// engine is the hit/miss flow shared by all caches.
type engine struct {
	name    string
	store   Store
	keys    KeyDeriver
	ttl     *time.Duration
	logger  zerolog.Logger
	onError ErrorFunc
	now     func() time.Time

	// prepare adjusts a fresh handler response before it is encoded.
	prepare func(Response)
}

func newEngine(name string, store Store, keys KeyDeriver, opts Options) engine {
	if store == nil {
		panic("cache store cannot be nil")
	}
	e := engine{
		name:    name,
		store:   store,
		keys:    keys,
		ttl:     opts.TTL,
		logger:  opts.Logger.With().Str("cache", name).Logger(),
		onError: opts.OnError,
		now:     opts.Now,
	}
	if e.onError == nil {
		e.onError = defaultOnError
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func defaultOnError(w http.ResponseWriter, _ *http.Request, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// serve answers r from the cache or, on a miss, from next.
func (e *engine) serve(ctx context.Context, r *http.Request, baseKey string, next Handler) (Response, error) {
	key := e.keys.Derive(r)

	resp, err := e.lookup(ctx, key, baseKey)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		CacheHits.WithLabelValues(e.name).Inc()
		e.logger.Debug().
			Str("key", key.String()).
			Str("base_key", baseKey).
			Bool("cache_hit", true).
			Msg("Serving cached response")
		return resp, nil
	}

	CacheMisses.WithLabelValues(e.name).Inc()
	resp, err = next(ctx, r)
	if err != nil {
		return nil, err
	}
	if e.prepare != nil {
		e.prepare(resp)
	}

	entry, cacheable, err := Encode(resp, ComputeExpiry(e.ttl, e.now()))
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	if !cacheable {
		PassThrough.WithLabelValues(e.name).Inc()
		e.logger.Debug().
			Str("key", key.String()).
			Int("status_code", resp.StatusCode()).
			Msg("Response not cacheable")
		return resp, nil
	}

	data, err := entry.Marshal()
	if err != nil {
		return nil, err
	}
	if err := e.store.Set(ctx, key.String(), data, storeTTL(e.ttl), baseKey); err != nil {
		e.logger.Error().Err(err).Str("key", key.String()).Msg("Failed to store cache entry")
		return nil, fmt.Errorf("cache set: %w", err)
	}
	EntryBytes.WithLabelValues(e.name).Observe(float64(len(data)))

	e.logger.Debug().
		Str("key", key.String()).
		Str("base_key", baseKey).
		Str("kind", string(entry.Kind)).
		Bool("cache_hit", false).
		Msg("Cached response")
	return resp, nil
}

// lookup returns the cached response for key, or nil on a miss.
// Store failures are returned; unusable entries count as misses.
func (e *engine) lookup(ctx context.Context, key CacheKey, baseKey string) (Response, error) {
	data, err := e.store.Get(ctx, key.String(), baseKey)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		e.logger.Error().Err(err).Str("key", key.String()).Msg("Cache get error")
		return nil, fmt.Errorf("cache get: %w", err)
	}

	entry, err := UnmarshalEntry(data)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("Ignoring corrupted cache entry")
		return nil, nil
	}

	if entry.IsExpired(e.now()) {
		if err := e.store.Delete(ctx, key.String(), baseKey); err != nil {
			e.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to delete expired entry")
		}
		return nil, nil
	}

	resp, err := Decode(entry)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("Ignoring undecodable cache entry")
		return nil, nil
	}
	return resp, nil
}

// handler adapts the flow to net/http.
func (e *engine) handler(baseKey BaseKeyFunc, next Handler, rangeable bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var bk string
		if baseKey != nil {
			var err error
			if bk, err = baseKey(ctx, r); err != nil {
				e.onError(w, r, err)
				return
			}
		}

		resp, err := e.serve(ctx, r, bk, next)
		if err != nil {
			e.onError(w, r, err)
			return
		}
		if err := writeResponse(w, r, resp, rangeable); err != nil {
			e.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to write response")
		}
	})
}
