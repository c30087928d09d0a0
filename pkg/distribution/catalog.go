package distribution

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// RemoveFunc is called after a distribution left the catalog.
type RemoveFunc func(ctx context.Context, d Distribution) error

// Catalog is an in-memory distribution store implementing Lookup.
// It is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	byName   map[string]Distribution
	onRemove []RemoveFunc
	logger   zerolog.Logger
}

// catalogFile is the YAML layout of a catalog file.
//
//	distributions:
//	  - name: docker-cache
//	    base_path: docker-cache
//	    pull_through: true
//	    upstream: https://registry-1.docker.io
//	  - name: hello
//	    base_path: library/hello
type catalogFile struct {
	Distributions []Distribution `yaml:"distributions"`
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger zerolog.Logger) *Catalog {
	return &Catalog{
		byName: make(map[string]Distribution),
		logger: logger,
	}
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string, logger zerolog.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data, logger)
}

// ParseCatalog builds a catalog from YAML.
func ParseCatalog(data []byte, logger zerolog.Logger) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := NewCatalog(logger)
	for _, d := range file.Distributions {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnRemove registers fn to run whenever a distribution is removed.
func (c *Catalog) OnRemove(fn RemoveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemove = append(c.onRemove, fn)
}

// Add inserts d. Names are unique, base paths are unique per tenant.
func (c *Catalog) Add(d Distribution) error {
	if d.Tenant == "" {
		d.Tenant = DefaultTenant
	}
	d.BasePath = strings.Trim(d.BasePath, "/")
	if d.Name == "" || d.BasePath == "" {
		return fmt.Errorf("distribution needs a name and a base path (got %q, %q)", d.Name, d.BasePath)
	}
	if !ValidBasePath(d.BasePath) {
		return fmt.Errorf("distribution %s: invalid base path %q", d.Name, d.BasePath)
	}
	if d.PullThrough && d.Upstream == "" {
		return fmt.Errorf("pull-through distribution %s needs an upstream", d.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(d)
}

func (c *Catalog) addLocked(d Distribution) error {
	if _, ok := c.byName[d.Name]; ok {
		return fmt.Errorf("%w: name %s already exists", ErrConflict, d.Name)
	}
	for _, other := range c.byName {
		if other.Tenant == d.Tenant && other.BasePath == d.BasePath {
			return fmt.Errorf("%w: base path %s already served by %s", ErrConflict, d.BasePath, other.Name)
		}
	}
	c.byName[d.Name] = d
	return nil
}

// Get returns the distribution called name.
func (c *Catalog) Get(name string) (Distribution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byName[name]
	return d, ok
}

// List returns the concrete distributions of tenant, ordered by base path.
func (c *Catalog) List(tenant string) []Distribution {
	tenant = normalizeTenant(tenant)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Distribution
	for _, d := range c.byName {
		if !d.PullThrough && d.Tenant == tenant {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BasePath < out[j].BasePath })
	return out
}

// Children returns the distributions provisioned by the pull-through
// distribution called name, ordered by base path.
func (c *Catalog) Children(name string) []Distribution {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Distribution
	for _, d := range c.byName {
		if d.Parent == name {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BasePath < out[j].BasePath })
	return out
}

// Remove deletes the distribution called name and runs the remove hooks.
// Hook errors are returned; the distribution is gone regardless.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	d, ok := c.byName[name]
	if ok {
		delete(c.byName, name)
	}
	hooks := append([]RemoveFunc(nil), c.onRemove...)
	c.mu.Unlock()

	if !ok {
		return &RepositoryNotFoundError{Name: name}
	}
	for _, fn := range hooks {
		if err := fn(ctx, d); err != nil {
			return fmt.Errorf("remove hook for %s: %w", name, err)
		}
	}
	return nil
}

// FindExact returns the concrete distribution serving path.
func (c *Catalog) FindExact(_ context.Context, path, tenant string) (Distribution, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.findExactLocked(path, normalizeTenant(tenant))
	return d, ok, nil
}

func (c *Catalog) findExactLocked(path, tenant string) (Distribution, bool) {
	for _, d := range c.byName {
		if !d.PullThrough && d.Tenant == tenant && d.BasePath == path {
			return d, true
		}
	}
	return Distribution{}, false
}

// FindPullThroughCandidates returns the pull-through distributions whose
// base path prefixes path, greatest base path first.
func (c *Catalog) FindPullThroughCandidates(_ context.Context, path, tenant string) ([]Distribution, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.candidatesLocked(path, normalizeTenant(tenant)), nil
}

func (c *Catalog) candidatesLocked(path, tenant string) []Distribution {
	var out []Distribution
	for _, d := range c.byName {
		if d.PullThrough && d.Tenant == tenant && strings.HasPrefix(path, d.BasePath) {
			out = append(out, d)
		}
	}
	sortGreatestFirst(out)
	return out
}

// EnsureDistribution returns the concrete distribution for path, creating
// it below the matching pull-through distribution when it does not exist
// yet. Concurrent callers for the same path get the same distribution;
// created reports whether this call made it.
func (c *Catalog) EnsureDistribution(_ context.Context, path, tenant string) (d Distribution, created bool, err error) {
	tenant = normalizeTenant(tenant)

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.findExactLocked(path, tenant); ok {
		return d, false, nil
	}

	parent, ok := MostSpecific(c.candidatesLocked(path, tenant), path)
	if !ok {
		return Distribution{}, false, &RepositoryNotFoundError{Name: path}
	}

	d = Distribution{
		Name:     BaseKey(tenant, path),
		BasePath: path,
		Tenant:   tenant,
		Upstream: parent.Upstream,
		Parent:   parent.Name,
	}
	if err := c.addLocked(d); err != nil {
		return Distribution{}, false, err
	}

	Provisioned.Inc()
	c.logger.Info().
		Str("base_path", path).
		Str("pull_through", parent.Name).
		Msg("Provisioned pull-through distribution")
	return d, true, nil
}

func normalizeTenant(tenant string) string {
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}
