package cache

import (
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{
			name:  "redirect",
			entry: Entry{Kind: KindRedirect, Status: 302, RedirectTo: "https://blobs.example/x"},
		},
		{
			name:  "file",
			entry: Entry{Kind: KindFile, Status: 200, Path: "/tmp/blob"},
		},
		{
			name:  "structured with empty body",
			entry: Entry{Kind: KindStructured, Status: 200, Content: strPtr("")},
		},
		{
			name:    "unknown kind",
			entry:   Entry{Kind: "StreamResponse", Status: 200, Content: strPtr("x")},
			wantErr: true,
		},
		{
			name:    "two payloads",
			entry:   Entry{Kind: KindRaw, Status: 200, Content: strPtr("x"), Path: "/tmp/blob"},
			wantErr: true,
		},
		{
			name:    "payload does not match kind",
			entry:   Entry{Kind: KindRedirect, Status: 302, Path: "/tmp/blob"},
			wantErr: true,
		},
		{
			name:    "no payload",
			entry:   Entry{Kind: KindRaw, Status: 200},
			wantErr: true,
		},
		{
			name:    "missing status",
			entry:   Entry{Kind: KindRaw, Content: strPtr("x")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Validate() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestUnmarshalEntry(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{
			name: "valid raw entry",
			data: `{"type":"RawResponse","headers":{"content-type":"text/plain"},"status":200,"expires":null,"content":"hi"}`,
		},
		{
			name:    "not json",
			data:    `not json`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			data:    `{"type":"RawResponse","headers":{},"status":200,"expires":null,"content":"hi","etag":"x"}`,
			wantErr: true,
		},
		{
			name:    "wrong field type",
			data:    `{"type":"RawResponse","headers":{},"status":"200","expires":null,"content":"hi"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := UnmarshalEntry([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalEntry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEntry) {
					t.Errorf("UnmarshalEntry() error = %v, want ErrInvalidEntry", err)
				}
				return
			}
			if got := entry.Headers.Get("Content-Type"); got != "text/plain" {
				t.Errorf("Headers.Get(Content-Type) = %q, want %q", got, "text/plain")
			}
		})
	}
}

func TestEntry_MarshalRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ttl := 10 * time.Second
	entry := &Entry{
		Kind:       KindRedirect,
		Headers:    Headers{"Location": {"https://blobs.example/x"}},
		Status:     307,
		ExpiresAt:  ComputeExpiry(&ttl, now),
		RedirectTo: "https://blobs.example/x",
	}

	data, err := entry.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := UnmarshalEntry(data)
	if err != nil {
		t.Fatalf("UnmarshalEntry() error = %v", err)
	}
	if *got.ExpiresAt != *entry.ExpiresAt {
		t.Errorf("ExpiresAt = %v, want %v", *got.ExpiresAt, *entry.ExpiresAt)
	}
	if got.RedirectTo != entry.RedirectTo {
		t.Errorf("RedirectTo = %v, want %v", got.RedirectTo, entry.RedirectTo)
	}
}
