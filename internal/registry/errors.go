package registry

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/registry-cache/internal/upstream"
	"github.com/Sternrassler/registry-cache/pkg/cache"
	"github.com/Sternrassler/registry-cache/pkg/distribution"
)

// Registry error codes.
const (
	codeNameUnknown     = "NAME_UNKNOWN"
	codeManifestUnknown = "MANIFEST_UNKNOWN"
	codeBlobUnknown     = "BLOB_UNKNOWN"
	codeNameInvalid     = "NAME_INVALID"
	codeTagInvalid      = "TAG_INVALID"
	codeDigestInvalid   = "DIGEST_INVALID"
	codeUnsupported     = "UNSUPPORTED"
	codeUnavailable     = "UNAVAILABLE"
	codeUnknown         = "UNKNOWN"
)

type errorBody struct {
	Errors []errorDetail `json:"errors"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// errorResponse builds a registry error body. Error statuses are never cached.
func errorResponse(status int, code, message string, detail map[string]any) *cache.StructuredResponse {
	return cache.Structured(status, errorBody{Errors: []errorDetail{{
		Code:    code,
		Message: message,
		Detail:  detail,
	}}})
}

// writeError maps err to a registry error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound *distribution.RepositoryNotFoundError
		resp     *cache.StructuredResponse
		level    = zerolog.ErrorLevel
	)
	switch {
	case errors.As(err, &notFound):
		resp = errorResponse(http.StatusNotFound, codeNameUnknown,
			"repository name not known to registry", map[string]any{"name": notFound.Name})
		level = zerolog.DebugLevel
	case errors.Is(err, upstream.ErrRetryExhausted), upstream.StatusOf(err) != 0:
		resp = errorResponse(http.StatusBadGateway, codeUnavailable, "upstream registry unavailable", nil)
		level = zerolog.WarnLevel
	case errors.Is(err, context.Canceled):
		// Client went away.
		return
	default:
		resp = errorResponse(http.StatusInternalServerError, codeUnknown, "internal error", nil)
	}

	zerolog.Ctx(r.Context()).WithLevel(level).
		Err(err).
		Str("path", r.URL.Path).
		Int("status", resp.StatusCode()).
		Msg("Request failed")

	if werr := cache.WriteResponse(w, r, resp); werr != nil {
		zerolog.Ctx(r.Context()).Warn().Err(werr).Msg("Failed to write error response")
	}
}
