package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is the result of a registry handler.
//
// The set of implementations is closed: RedirectResponse, FileResponse,
// StructuredResponse, RawResponse and StreamResponse. Encode and the
// response writers switch over exactly these types.
type Response interface {
	// StatusCode is the HTTP status of the response.
	StatusCode() int

	// Header is the live header map; changes are visible when the response is written.
	Header() http.Header

	response()
}

type base struct {
	status int
	header http.Header
}

func newBase(status int) base {
	return base{status: status, header: make(http.Header)}
}

func (b *base) StatusCode() int     { return b.status }
func (b *base) Header() http.Header { return b.header }
func (*base) response()             {}

// RedirectResponse sends the client to another location.
type RedirectResponse struct {
	base
	Location string
}

// Redirect creates a redirect response with the given status (3xx).
func Redirect(status int, location string) *RedirectResponse {
	r := &RedirectResponse{base: newBase(status), Location: location}
	r.header.Set("Location", location)
	return r
}

// FileResponse serves a file from disk.
type FileResponse struct {
	base
	Path string
}

// File creates a 200 response serving the file at path.
func File(path string) *FileResponse {
	return &FileResponse{base: newBase(http.StatusOK), Path: path}
}

// StructuredResponse holds a value that is rendered to JSON on demand.
type StructuredResponse struct {
	base
	Value any

	body     []byte
	rendered bool
}

// Structured creates a response rendering v as JSON.
func Structured(status int, v any) *StructuredResponse {
	return &StructuredResponse{base: newBase(status), Value: v}
}

// Render produces the final body. The result is memoized, later calls
// return the same bytes even if Value changed.
func (r *StructuredResponse) Render() ([]byte, error) {
	if r.rendered {
		return r.body, nil
	}
	body, err := json.Marshal(r.Value)
	if err != nil {
		return nil, fmt.Errorf("render structured response: %w", err)
	}
	if r.header.Get("Content-Type") == "" {
		r.header.Set("Content-Type", "application/json")
	}
	r.body = body
	r.rendered = true
	return r.body, nil
}

// RawResponse carries an already materialized body.
type RawResponse struct {
	base
	Body []byte
}

// Raw creates a response with a fixed body.
func Raw(status int, contentType string, body []byte) *RawResponse {
	r := &RawResponse{base: newBase(status), Body: body}
	if contentType != "" {
		r.header.Set("Content-Type", contentType)
	}
	return r
}

// StreamResponse copies Body to the client. It is never cached.
type StreamResponse struct {
	base
	Body io.ReadCloser
}

// Stream creates a response streaming body. The body is closed once written.
func Stream(status int, body io.ReadCloser) *StreamResponse {
	return &StreamResponse{base: newBase(status), Body: body}
}
