package cache

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Attribute names a request attribute that can take part in a cache key.
type Attribute string

const (
	AttrPath   Attribute = "path"
	AttrMethod Attribute = "method"
	AttrHost   Attribute = "host"
	AttrAccept Attribute = "accept_header"
	AttrQuery  Attribute = "query"
)

// Attribute sets used by the caches of this package.
var (
	ContentKeyAttributes = []Attribute{AttrPath, AttrMethod, AttrHost, AttrAccept}
	APIKeyAttributes     = []Attribute{AttrPath, AttrMethod, AttrHost, AttrAccept}
	IndexKeyAttributes   = []Attribute{AttrQuery}
)

// CacheKey identifies a cached response inside its partition.
type CacheKey string

// String returns the key as stored in the backing store.
func (k CacheKey) String() string {
	return string(k)
}

// KeyDeriver computes cache keys from a fixed, ordered attribute set.
type KeyDeriver struct {
	attrs []Attribute
}

// NewKeyDeriver creates a deriver over attrs, in the given order.
func NewKeyDeriver(attrs ...Attribute) KeyDeriver {
	return KeyDeriver{attrs: append([]Attribute(nil), attrs...)}
}

// Attributes returns the active attribute set.
func (d KeyDeriver) Attributes() []Attribute {
	return append([]Attribute(nil), d.attrs...)
}

// Derive generates a deterministic cache key for r.
// Format: <len>#<value>:<len>#<value>...
//
// Example:
//
//	12#/v2/foo/bar:3#GET:9#localhost:0#
//
// Each component is length-prefixed, so no attribute value can be confused
// with the ":" delimiter.
func (d KeyDeriver) Derive(r *http.Request) CacheKey {
	parts := make([]string, 0, len(d.attrs))
	for _, attr := range d.attrs {
		value := attributeValue(r, attr)
		parts = append(parts, strconv.Itoa(len(value))+"#"+value)
	}
	return CacheKey(strings.Join(parts, ":"))
}

func attributeValue(r *http.Request, attr Attribute) string {
	switch attr {
	case AttrPath:
		return r.URL.Path
	case AttrMethod:
		return r.Method
	case AttrHost:
		return r.Host
	case AttrAccept:
		return acceptHeader(r.Header.Values("Accept"))
	case AttrQuery:
		return r.URL.Query().Encode()
	default:
		return ""
	}
}

// acceptHeader normalizes every Accept value of a request: the media ranges
// are sorted and comma-joined, so header order never changes the key.
func acceptHeader(values []string) string {
	var ranges []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ranges = append(ranges, part)
			}
		}
	}
	sort.Strings(ranges)
	return strings.Join(ranges, ",")
}
