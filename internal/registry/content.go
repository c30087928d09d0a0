package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/registry-cache/internal/upstream"
	"github.com/Sternrassler/registry-cache/pkg/cache"
	"github.com/Sternrassler/registry-cache/pkg/distribution"
)

// tagList is the body of /v2/<name>/tags/list.
type tagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// streamedHeaders are copied from upstream answers.
var streamedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Docker-Content-Digest",
	"ETag",
}

func (s *Server) contentPath(name string, parts ...string) string {
	return filepath.Join(append([]string{s.opts.ContentRoot, filepath.FromSlash(name)}, parts...)...)
}

func (s *Server) serveManifest(rt route) cache.Handler {
	return func(ctx context.Context, r *http.Request) (cache.Response, error) {
		path := s.contentPath(rt.name, "manifests", rt.ref)
		if !isFile(path) {
			return s.pullThrough(ctx, r, rt, codeManifestUnknown, "manifest unknown")
		}

		resp := cache.File(path)
		resp.Header().Set("Content-Type", manifestMediaType(path))
		if isDigest(rt.ref) {
			resp.Header().Set("Docker-Content-Digest", rt.ref)
		}
		return resp, nil
	}
}

func (s *Server) serveBlob(rt route) cache.Handler {
	return func(ctx context.Context, r *http.Request) (cache.Response, error) {
		path := s.contentPath(rt.name, "blobs", rt.ref)
		if !isFile(path) {
			return s.pullThrough(ctx, r, rt, codeBlobUnknown, "blob unknown to registry")
		}

		if s.opts.BlobRedirect != "" {
			location := strings.TrimRight(s.opts.BlobRedirect, "/") + "/" + rt.name + "/blobs/" + rt.ref
			return cache.Redirect(http.StatusTemporaryRedirect, location), nil
		}

		resp := cache.File(path)
		resp.Header().Set("Content-Type", "application/octet-stream")
		resp.Header().Set("Docker-Content-Digest", rt.ref)
		return resp, nil
	}
}

func (s *Server) serveTags(rt route) cache.Handler {
	return func(ctx context.Context, r *http.Request) (cache.Response, error) {
		tags, err := s.localTags(rt.name)
		if errors.Is(err, os.ErrNotExist) {
			return s.pullThrough(ctx, r, rt, codeNameUnknown, "repository name not known to registry")
		}
		if err != nil {
			return nil, err
		}
		return cache.Structured(http.StatusOK, tagList{Name: rt.name, Tags: tags}), nil
	}
}

// localTags lists the tags stored for name. Digest references are skipped.
func (s *Server) localTags(name string) ([]string, error) {
	entries, err := os.ReadDir(s.contentPath(name, "manifests"))
	if err != nil {
		return nil, err
	}
	tags := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && !isDigest(e.Name()) {
			tags = append(tags, e.Name())
		}
	}
	return tags, nil
}

// pullThrough answers a request for content that is not stored locally.
// Repositories below a pull-through distribution are fetched from upstream
// and streamed back uncached; anything else is a registry 404 with code.
// The concrete distribution is only provisioned once upstream has answered
// with content, so failed pulls leave the catalog untouched.
func (s *Server) pullThrough(ctx context.Context, r *http.Request, rt route, code, message string) (cache.Response, error) {
	notFound := func() (cache.Response, error) {
		return errorResponse(http.StatusNotFound, code, message, map[string]any{"name": rt.name}), nil
	}

	parent, ok, err := s.pullThroughParent(ctx, rt.name)
	if err != nil {
		return nil, err
	}
	if !ok || s.upstream == nil {
		return notFound()
	}
	if parent.BasePath == rt.name {
		// The pull-through base path itself is not a repository.
		return nil, &distribution.RepositoryNotFoundError{Name: rt.name}
	}

	url := strings.TrimRight(parent.Upstream, "/") + "/v2/" + parent.RemoteName(rt.name) + "/" + string(rt.kind)
	if rt.ref != "" {
		url += "/" + rt.ref
	}

	up, err := s.upstream.Fetch(ctx, url, r.Header)
	if upstream.StatusOf(err) == http.StatusNotFound {
		return notFound()
	}
	if err != nil {
		return nil, fmt.Errorf("pull through %s: %w", rt.name, err)
	}

	_, created, err := s.catalog.EnsureDistribution(ctx, rt.name, s.opts.Tenant)
	if err != nil {
		up.Body.Close()
		return nil, err
	}

	logger := zerolog.Ctx(ctx)
	if created {
		logger.Info().
			Str("path", rt.name).
			Str("pull_through", parent.Name).
			Msg("Serving new repository from upstream")
	}

	upstreamFallbacks.WithLabelValues(string(rt.kind)).Inc()
	logger.Debug().Str("url", url).Int("status", up.StatusCode).Msg("Streaming upstream content")

	resp := cache.Stream(up.StatusCode, up.Body)
	for _, name := range streamedHeaders {
		if v := up.Header.Get(name); v != "" {
			resp.Header().Set(name, v)
		}
	}
	return resp, nil
}

// pullThroughParent returns the pull-through distribution serving name,
// either the one that already provisioned it or the most specific match.
func (s *Server) pullThroughParent(ctx context.Context, name string) (distribution.Distribution, bool, error) {
	d, ok, err := s.catalog.FindExact(ctx, name, s.opts.Tenant)
	if err != nil {
		return distribution.Distribution{}, false, err
	}
	if ok {
		if d.Parent == "" {
			return distribution.Distribution{}, false, nil
		}
		parent, ok := s.catalog.Get(d.Parent)
		return parent, ok, nil
	}

	candidates, err := s.catalog.FindPullThroughCandidates(ctx, name, s.opts.Tenant)
	if err != nil {
		return distribution.Distribution{}, false, err
	}
	parent, ok := distribution.MostSpecific(candidates, name)
	return parent, ok, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// manifestMediaType reads the mediaType field of a stored manifest.
func manifestMediaType(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ocispec.MediaTypeImageManifest
	}
	defer f.Close()

	const maxInspectBytes = 512 * 1024
	var manifest ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(f, maxInspectBytes)).Decode(&manifest); err != nil {
		return ocispec.MediaTypeImageManifest
	}
	if mt := strings.TrimSpace(manifest.MediaType); mt != "" {
		return mt
	}
	return ocispec.MediaTypeImageManifest
}
