// Package distribution resolves registry request paths to the distribution
// (and cache partition) they belong to.
package distribution

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/distribution/reference"
)

// DefaultTenant is the tenant of single-tenant deployments.
const DefaultTenant = "default"

// Distribution is a registry endpoint serving one repository.
type Distribution struct {
	// Name uniquely identifies the distribution
	Name string `yaml:"name"`

	// BasePath is the repository name clients pull from (unique per tenant)
	BasePath string `yaml:"base_path"`

	// Tenant scopes the distribution (default: "default")
	Tenant string `yaml:"tenant"`

	// PullThrough marks a distribution whose BasePath is a prefix for
	// lazily provisioned concrete distributions.
	PullThrough bool `yaml:"pull_through"`

	// Upstream is the registry a pull-through distribution fetches from
	Upstream string `yaml:"upstream"`

	// Parent is the pull-through distribution that provisioned this one
	Parent string `yaml:"parent,omitempty"`
}

// BaseKey returns the cache partition of the distribution.
func (d Distribution) BaseKey() string {
	return BaseKey(d.Tenant, d.BasePath)
}

// RemoteName returns the upstream repository name of path, relative to the
// pull-through distribution d.
func (d Distribution) RemoteName(path string) string {
	return strings.TrimPrefix(strings.TrimPrefix(path, d.BasePath), "/")
}

var anchoredName = regexp.MustCompile(`^` + reference.NameRegexp.String() + `$`)

// ValidBasePath reports whether path is a repository name in the
// distribution grammar. Such names never contain "#".
func ValidBasePath(path string) bool {
	return len(path) <= reference.NameTotalLengthMax && anchoredName.MatchString(path)
}

// BaseKey returns the cache partition for a base path in tenant. The
// default tenant uses the bare base path; other tenants are length-prefixed
// so no tenant can be confused with part of a base path:
//
//	4#acme:library/hello
func BaseKey(tenant, basePath string) string {
	if tenant == "" || tenant == DefaultTenant {
		return basePath
	}
	return strconv.Itoa(len(tenant)) + "#" + tenant + ":" + basePath
}

// Lookup finds distributions. Implementations only read.
type Lookup interface {
	// FindExact returns the concrete distribution whose base path equals path.
	// ok is false if there is none.
	FindExact(ctx context.Context, path, tenant string) (d Distribution, ok bool, err error)

	// FindPullThroughCandidates returns the pull-through distributions whose
	// base path is a prefix of path, ordered by base path, greatest first.
	FindPullThroughCandidates(ctx context.Context, path, tenant string) ([]Distribution, error)
}

// MostSpecific picks the pull-through distribution serving path among
// candidates: the lexicographically greatest base path that is a string
// prefix of path.
func MostSpecific(candidates []Distribution, path string) (Distribution, bool) {
	var (
		best  Distribution
		found bool
	)
	for _, d := range candidates {
		if !d.PullThrough || !strings.HasPrefix(path, d.BasePath) {
			continue
		}
		if !found || d.BasePath > best.BasePath {
			best, found = d, true
		}
	}
	return best, found
}

// sortGreatestFirst orders distributions by base path, descending.
func sortGreatestFirst(ds []Distribution) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].BasePath > ds[j].BasePath })
}
