package registry

import (
	"context"
	"net/http"
	"slices"

	"github.com/Sternrassler/registry-cache/pkg/cache"
)

// indexResponse is the body of the static image index.
type indexResponse struct {
	Results []indexRepository `json:"Results"`
}

type indexRepository struct {
	Name string   `json:"Name"`
	Tags []string `json:"Tags"`
}

// serveIndex lists the local repositories and their tags. The repository
// and tag query parameters narrow the result.
func (s *Server) serveIndex(_ context.Context, r *http.Request) (cache.Response, error) {
	query := r.URL.Query()
	wantRepos := query["repository"]
	wantTags := query["tag"]

	results := []indexRepository{}
	for _, d := range s.catalog.List(s.opts.Tenant) {
		if len(wantRepos) > 0 && !slices.Contains(wantRepos, d.BasePath) {
			continue
		}
		tags, err := s.localTags(d.BasePath)
		if err != nil {
			continue
		}
		if len(wantTags) > 0 {
			tags = slices.DeleteFunc(tags, func(t string) bool { return !slices.Contains(wantTags, t) })
		}
		if len(tags) == 0 {
			continue
		}
		results = append(results, indexRepository{Name: d.BasePath, Tags: tags})
	}
	return cache.Structured(http.StatusOK, indexResponse{Results: results}), nil
}
