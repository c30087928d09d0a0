// Package registry serves the read side of the container registry API
// through the response caches.
package registry

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/registry-cache/pkg/cache"
	"github.com/Sternrassler/registry-cache/pkg/distribution"
)

// Fetcher fetches from upstream registries. *upstream.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*http.Response, error)
}

// Options configure a Server.
type Options struct {
	// ContentRoot holds <base path>/manifests/<ref> and <base path>/blobs/<digest>.
	ContentRoot string

	// BlobRedirect, when set, answers blob requests with a redirect to
	// <BlobRedirect>/<base path>/blobs/<digest>.
	BlobRedirect string

	// Tenant scopes distribution lookups.
	Tenant string

	// TTL of cached entries; nil never expires.
	TTL *time.Duration

	Logger zerolog.Logger
}

// Server is the registry HTTP handler.
type Server struct {
	content  *cache.ContentCache
	api      *cache.APICache
	index    *cache.APICache
	resolver *distribution.Resolver
	catalog  *distribution.Catalog
	upstream Fetcher
	opts     Options
	logger   zerolog.Logger
}

// New wires the caches, the resolver and the catalog together. fetcher may
// be nil when no pull-through distributions are configured.
func New(store cache.Store, catalog *distribution.Catalog, fetcher Fetcher, opts Options) *Server {
	s := &Server{
		resolver: distribution.NewResolver(store, catalog, opts.Logger.With().Str("component", "resolver").Logger()),
		catalog:  catalog,
		upstream: fetcher,
		opts:     opts,
		logger:   opts.Logger,
	}

	cacheOpts := cache.Options{
		TTL:     opts.TTL,
		Logger:  opts.Logger,
		OnError: s.writeError,
	}
	s.content = cache.NewContentCache(store, cacheOpts)
	s.api = cache.NewAPICache(store, cacheOpts)
	s.index = cache.NewIndexCache(store, cacheOpts)

	catalog.OnRemove(s.resolver.Forget)
	catalog.OnRemove(func(ctx context.Context, _ distribution.Distribution) error {
		return s.index.Invalidate(ctx, "")
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withRequestContext(s.route).ServeHTTP(w, r)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		s.reply(w, r, errorResponse(http.StatusMethodNotAllowed, codeUnsupported, "the operation is unsupported", nil))
		return
	}

	switch r.URL.Path {
	case "/v2", "/v2/":
		s.api.Handler(nil, s.serveBase).ServeHTTP(w, r)
		return
	case cache.IndexBaseKey:
		s.index.Handler(nil, s.serveIndex).ServeHTTP(w, r)
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/v2/") {
		http.NotFound(w, r)
		return
	}
	rt, ok := parseRoute(r.URL.Path)
	if !ok {
		s.reply(w, r, errorResponse(http.StatusNotFound, codeUnsupported, "the operation is unsupported", nil))
		return
	}
	if rerr := rt.validate(); rerr != nil {
		s.reply(w, r, rerr.response(rt.name))
		return
	}

	baseKey := s.baseKeyFor(rt.name)
	switch rt.kind {
	case routeTags:
		s.api.Handler(baseKey, s.serveTags(rt)).ServeHTTP(w, r)
	case routeManifest:
		s.content.Handler(baseKey, s.serveManifest(rt)).ServeHTTP(w, r)
	case routeBlob:
		s.content.Handler(baseKey, s.serveBlob(rt)).ServeHTTP(w, r)
	}
}

func (s *Server) baseKeyFor(name string) cache.BaseKeyFunc {
	return func(ctx context.Context, _ *http.Request) (string, error) {
		return s.resolver.ResolveBaseKey(ctx, name, s.opts.Tenant)
	}
}

// reply writes a response that bypasses the caches.
func (s *Server) reply(w http.ResponseWriter, r *http.Request, resp cache.Response) {
	if err := cache.WriteResponse(w, r, resp); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write response")
	}
}

// serveBase answers the API version check.
func (s *Server) serveBase(context.Context, *http.Request) (cache.Response, error) {
	resp := cache.Raw(http.StatusOK, "application/json", []byte("{}"))
	resp.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
	return resp, nil
}
