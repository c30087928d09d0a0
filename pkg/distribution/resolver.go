package distribution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/registry-cache/pkg/cache"
)

// Resolver maps request paths to cache partitions.
type Resolver struct {
	store  cache.Store
	lookup Lookup
	logger zerolog.Logger
}

// NewResolver creates a resolver over the cache store and a distribution lookup.
func NewResolver(store cache.Store, lookup Lookup, logger zerolog.Logger) *Resolver {
	if store == nil || lookup == nil {
		panic("resolver needs a store and a lookup")
	}
	return &Resolver{
		store:  store,
		lookup: lookup,
		logger: logger,
	}
}

// ResolveBaseKey returns the partition for path in tenant.
//
// An existing partition named after path is returned as-is, without asking
// the lookup whether its distribution still exists; Forget closes that
// window when a distribution goes away. Otherwise the exact distribution
// wins, then the pull-through distribution with the greatest base path
// prefixing path. Fails with *RepositoryNotFoundError. Never creates
// distributions.
func (r *Resolver) ResolveBaseKey(ctx context.Context, path, tenant string) (string, error) {
	candidate := BaseKey(tenant, path)
	exists, err := r.store.Exists(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("check cache partition: %w", err)
	}
	if exists {
		Resolutions.WithLabelValues("cached").Inc()
		return candidate, nil
	}

	d, ok, err := r.lookup.FindExact(ctx, path, tenant)
	if err != nil {
		return "", fmt.Errorf("find distribution: %w", err)
	}
	if ok {
		Resolutions.WithLabelValues("exact").Inc()
		return d.BaseKey(), nil
	}

	candidates, err := r.lookup.FindPullThroughCandidates(ctx, path, tenant)
	if err != nil {
		return "", fmt.Errorf("find pull-through distributions: %w", err)
	}
	if d, ok := MostSpecific(candidates, path); ok {
		Resolutions.WithLabelValues("pull_through").Inc()
		r.logger.Debug().
			Str("path", path).
			Str("base_path", d.BasePath).
			Msg("Resolved through pull-through distribution")
		return d.BaseKey(), nil
	}

	Resolutions.WithLabelValues("not_found").Inc()
	return "", &RepositoryNotFoundError{Name: path}
}

// Forget drops the cache partition of d.
func (r *Resolver) Forget(ctx context.Context, d Distribution) error {
	if err := r.store.Invalidate(ctx, d.BaseKey()); err != nil {
		return fmt.Errorf("invalidate %s: %w", d.BasePath, err)
	}
	r.logger.Info().Str("base_path", d.BasePath).Msg("Dropped cache partition")
	return nil
}
