package cache

import (
	"fmt"
	"net/http"
	"os"
	"unicode/utf8"
)

// StatusHeader is the response header exposing cache effectiveness.
const StatusHeader = "X-PULP-CACHE"

// Values of StatusHeader.
const (
	StatusHit  = "HIT"
	StatusMiss = "MISS"
)

// Encode captures resp as a cache entry expiring at expiresAt.
//
// The second return value is false when resp must pass through uncached:
// streamed bodies, error statuses and bodies that are not valid UTF-8 text.
// In every case the live response is marked as a miss; the captured headers
// never contain the marker.
func Encode(resp Response, expiresAt *float64) (*Entry, bool, error) {
	if resp == nil {
		return nil, false, nil
	}
	defer resp.Header().Set(StatusHeader, StatusMiss)

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, false, nil
	}

	// Structured bodies are rendered first; rendering may add headers.
	var rendered []byte
	if s, ok := resp.(*StructuredResponse); ok {
		body, err := s.Render()
		if err != nil {
			return nil, false, err
		}
		rendered = body
	}

	entry := &Entry{
		Headers:   HeadersFrom(resp.Header()),
		Status:    resp.StatusCode(),
		ExpiresAt: expiresAt,
	}
	entry.Headers.Del(StatusHeader)

	switch r := resp.(type) {
	case *RedirectResponse:
		if r.Location == "" {
			return nil, false, nil
		}
		entry.Kind = KindRedirect
		entry.RedirectTo = r.Location
	case *FileResponse:
		if r.Path == "" {
			return nil, false, nil
		}
		entry.Kind = KindFile
		entry.Path = r.Path
	case *StructuredResponse:
		if !utf8.Valid(rendered) {
			return nil, false, nil
		}
		content := string(rendered)
		entry.Kind = KindStructured
		entry.Content = &content
	case *RawResponse:
		if !utf8.Valid(r.Body) {
			return nil, false, nil
		}
		content := string(r.Body)
		entry.Kind = KindRaw
		entry.Content = &content
	default:
		// We don't cache streams
		return nil, false, nil
	}

	return entry, true, nil
}

// Decode rebuilds a replayable response from entry, marked as a hit.
// A File entry whose file is gone yields ErrInvalidEntry.
func Decode(entry *Entry) (Response, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	b := newBase(entry.Status)
	entry.Headers.Apply(b.header)

	var resp Response
	switch entry.Kind {
	case KindRedirect:
		b.header.Set("Location", entry.RedirectTo)
		resp = &RedirectResponse{base: b, Location: entry.RedirectTo}
	case KindFile:
		if _, err := os.Stat(entry.Path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		resp = &FileResponse{base: b, Path: entry.Path}
	case KindStructured:
		resp = &StructuredResponse{base: b, body: []byte(*entry.Content), rendered: true}
	case KindRaw:
		resp = &RawResponse{base: b, Body: []byte(*entry.Content)}
	}

	resp.Header().Set(StatusHeader, StatusHit)
	return resp, nil
}
