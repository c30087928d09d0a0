package cache

import (
	"time"
)

// ComputeExpiry returns the absolute expiry for an entry written at now.
// A nil ttl means the entry never expires and yields nil.
func ComputeExpiry(ttl *time.Duration, now time.Time) *float64 {
	if ttl == nil {
		return nil
	}
	at := epochSeconds(now.Add(*ttl))
	return &at
}

// IsExpired reports whether the entry is stale at now.
// The expiry is fixed at write time; reading never moves it.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return epochSeconds(now) > *e.ExpiresAt
}

// TTL returns the time left until expiration at now.
// Returns 0 for entries that never expire or are already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}
	ttl := time.Duration((*e.ExpiresAt - epochSeconds(now)) * float64(time.Second))
	if ttl < 0 {
		return 0
	}
	return ttl
}

// storeTTL is the native TTL handed to the backing store. Zero keeps the
// partition until it is invalidated.
func storeTTL(ttl *time.Duration) time.Duration {
	if ttl == nil || *ttl < 0 {
		return 0
	}
	return *ttl
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
