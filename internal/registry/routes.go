package registry

import (
	// Register the digest algorithms accepted in references.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"net/http"
	"regexp"
	"strings"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"

	"github.com/Sternrassler/registry-cache/pkg/cache"
	"github.com/Sternrassler/registry-cache/pkg/distribution"
)

// routeKind is the endpoint family of a /v2/<name>/... request.
type routeKind string

const (
	routeManifest routeKind = "manifests"
	routeBlob     routeKind = "blobs"
	routeTags     routeKind = "tags/list"
)

// route is a parsed repository request.
type route struct {
	kind routeKind
	name string
	ref  string
}

var anchoredTag = regexp.MustCompile(`^` + reference.TagRegexp.String() + `$`)

// parseRoute splits a /v2/<name>/<kind>/<ref> path. Names may contain
// slashes, so the kind is searched from the right. The parts are not
// validated; see validate.
func parseRoute(path string) (route, bool) {
	rest, ok := strings.CutPrefix(path, "/v2/")
	if !ok {
		return route{}, false
	}

	if name, ok := strings.CutSuffix(rest, "/"+string(routeTags)); ok && name != "" {
		return route{kind: routeTags, name: name}, true
	}

	for _, kind := range []routeKind{routeManifest, routeBlob} {
		sep := "/" + string(kind) + "/"
		i := strings.LastIndex(rest, sep)
		if i <= 0 || i+len(sep) == len(rest) {
			continue
		}
		return route{kind: kind, name: rest[:i], ref: rest[i+len(sep):]}, true
	}
	return route{}, false
}

// validate checks the name and reference against the distribution
// grammar. The result is a registry error body, or nil.
func (rt route) validate() *routeError {
	if !distribution.ValidBasePath(rt.name) {
		return &routeError{code: codeNameInvalid, message: "invalid repository name"}
	}
	switch rt.kind {
	case routeBlob:
		if !isDigest(rt.ref) {
			return &routeError{code: codeDigestInvalid, message: "invalid digest"}
		}
	case routeManifest:
		if !anchoredTag.MatchString(rt.ref) && !isDigest(rt.ref) {
			return &routeError{code: codeTagInvalid, message: "invalid tag or digest"}
		}
	}
	return nil
}

type routeError struct {
	code    string
	message string
}

func (e *routeError) response(name string) *cache.StructuredResponse {
	return errorResponse(http.StatusBadRequest, e.code, e.message, map[string]any{"name": name})
}

// isDigest reports whether ref is a well-formed content digest.
func isDigest(ref string) bool {
	_, err := digest.Parse(ref)
	return err == nil
}
