package cache

import (
	"testing"
	"time"
)

func TestComputeExpiry(t *testing.T) {
	now := time.Unix(1700000000, 500_000_000)

	if got := ComputeExpiry(nil, now); got != nil {
		t.Errorf("ComputeExpiry(nil) = %v, want nil", *got)
	}

	ttl := 10 * time.Second
	got := ComputeExpiry(&ttl, now)
	if got == nil {
		t.Fatal("ComputeExpiry() returned nil")
	}
	if want := 1700000010.5; *got != want {
		t.Errorf("ComputeExpiry() = %v, want %v", *got, want)
	}
}

func TestEntry_IsExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ttl := 10 * time.Second

	tests := []struct {
		name string
		ttl  *time.Duration
		at   time.Time
		want bool
	}{
		{name: "fresh at write time", ttl: &ttl, at: now, want: false},
		{name: "fresh within ttl", ttl: &ttl, at: now.Add(9 * time.Second), want: false},
		{name: "expired after ttl", ttl: &ttl, at: now.Add(11 * time.Second), want: true},
		{name: "never expires", ttl: nil, at: now.Add(100 * 365 * 24 * time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{ExpiresAt: ComputeExpiry(tt.ttl, now)}
			if got := entry.IsExpired(tt.at); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestEntry_IsExpired_Monotonic ensures repeated reads see the same expiry.
func TestEntry_IsExpired_Monotonic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ttl := 10 * time.Second
	entry := &Entry{ExpiresAt: ComputeExpiry(&ttl, now)}

	before := *entry.ExpiresAt
	for i := 0; i < 3; i++ {
		if entry.IsExpired(now.Add(5 * time.Second)) {
			t.Fatalf("read %d: entry expired within its ttl", i)
		}
	}
	if *entry.ExpiresAt != before {
		t.Errorf("ExpiresAt changed on read: %v -> %v", before, *entry.ExpiresAt)
	}
}

func TestEntry_TTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ttl := time.Hour

	tests := []struct {
		name    string
		entry   *Entry
		at      time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "one hour remaining",
			entry:   &Entry{ExpiresAt: ComputeExpiry(&ttl, now)},
			at:      now,
			wantMin: 59 * time.Minute,
			wantMax: 61 * time.Minute,
		},
		{
			name:    "already expired",
			entry:   &Entry{ExpiresAt: ComputeExpiry(&ttl, now)},
			at:      now.Add(2 * time.Hour),
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "never expires",
			entry:   &Entry{},
			at:      now,
			wantMin: 0,
			wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.entry.TTL(tt.at)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
