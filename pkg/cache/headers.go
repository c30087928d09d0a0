package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
)

// Headers maps canonical header names to their values.
// Every access goes through the canonical MIME form of the name, so callers
// never have to care about the casing a handler used.
//
// In JSON a header with one value is a string and a repeated header, such as
// Set-Cookie, is an array of strings.
type Headers map[string][]string

// HeadersFrom copies an http.Header, keeping repeated values apart.
func HeadersFrom(h http.Header) Headers {
	out := make(Headers, len(h))
	for name, values := range h {
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out
}

// Get returns the first value stored for name.
func (h Headers) Get(name string) string {
	if values := h[http.CanonicalHeaderKey(name)]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Values returns every value stored for name.
func (h Headers) Values(name string) []string {
	return h[http.CanonicalHeaderKey(name)]
}

// Set replaces the values of name with value.
func (h Headers) Set(name, value string) {
	h[http.CanonicalHeaderKey(name)] = []string{value}
}

// Add appends value to name.
func (h Headers) Add(name, value string) {
	key := http.CanonicalHeaderKey(name)
	h[key] = append(h[key], value)
}

// Del removes name.
func (h Headers) Del(name string) {
	delete(h, http.CanonicalHeaderKey(name))
}

// Apply sets every header on dst, replacing existing values.
func (h Headers) Apply(dst http.Header) {
	for name, values := range h {
		dst[name] = slices.Clone(values)
	}
}

// MarshalJSON writes single values as strings.
func (h Headers) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(h))
	for name, values := range h {
		if len(values) == 1 {
			raw[name] = values[0]
		} else {
			raw[name] = values
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON canonicalizes names of stored entries and accepts both a
// string and an array of strings per header.
func (h *Headers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Headers, len(raw))
	for name, value := range raw {
		if bytes.HasPrefix(bytes.TrimSpace(value), []byte("[")) {
			var values []string
			if err := json.Unmarshal(value, &values); err != nil {
				return fmt.Errorf("header %s: %w", name, err)
			}
			for _, v := range values {
				out.Add(name, v)
			}
			continue
		}
		var v string
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("header %s: %w", name, err)
		}
		out.Add(name, v)
	}
	*h = out
	return nil
}
