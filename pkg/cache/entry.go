package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the response shape an Entry was captured from.
type Kind string

const (
	KindRedirect   Kind = "Redirect"
	KindFile       Kind = "File"
	KindStructured Kind = "StructuredResponse"
	KindRaw        Kind = "RawResponse"
)

// Entry is the record stored in the backing store for one cached response.
// Exactly one of RedirectTo, Path and Content is set, matching Kind.
type Entry struct {
	// Kind is the response shape
	Kind Kind `json:"type"`

	// Headers are the response headers, without the cache status marker
	Headers Headers `json:"headers"`

	// Status is the HTTP status code
	Status int `json:"status"`

	// ExpiresAt is the absolute expiry in seconds since the epoch.
	// nil means the entry never expires.
	ExpiresAt *float64 `json:"expires"`

	// RedirectTo is the Location of a Redirect entry
	RedirectTo string `json:"redirect_to,omitempty"`

	// Path is the file served by a File entry
	Path string `json:"path,omitempty"`

	// Content is the body of StructuredResponse and RawResponse entries
	Content *string `json:"content,omitempty"`
}

// Validate checks that the entry carries exactly the payload its kind needs.
func (e *Entry) Validate() error {
	if e.Status < 100 || e.Status > 999 {
		return fmt.Errorf("%w: status %d", ErrInvalidEntry, e.Status)
	}

	populated := 0
	if e.RedirectTo != "" {
		populated++
	}
	if e.Path != "" {
		populated++
	}
	if e.Content != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("%w: %d payloads populated", ErrInvalidEntry, populated)
	}

	var ok bool
	switch e.Kind {
	case KindRedirect:
		ok = e.RedirectTo != ""
	case KindFile:
		ok = e.Path != ""
	case KindStructured, KindRaw:
		ok = e.Content != nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, e.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: payload does not match kind %s", ErrInvalidEntry, e.Kind)
	}
	return nil
}

// Marshal serializes the entry for the backing store.
func (e *Entry) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

// UnmarshalEntry parses and validates a stored entry.
// Corrupted or schema-mismatched data yields ErrInvalidEntry.
func UnmarshalEntry(data []byte) (*Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var entry Entry
	if err := dec.Decode(&entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return &entry, nil
}
