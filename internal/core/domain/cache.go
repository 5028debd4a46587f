package domain

import "time"

// CacheEntry is a cached utility score.
// Entries are written once and never mutated; concurrent writers resolve last-writer-wins.
type CacheEntry struct {
	Fingerprint Fingerprint
	Score       float64
	CreatedAt   time.Time
	// TTL is the time-to-live of the entry. Zero means it never expires.
	TTL time.Duration
}

// ExpiresAt returns the expiry time, or the zero time if the entry never expires.
func (e CacheEntry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether the entry is expired at now.
func (e CacheEntry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return !now.Before(e.ExpiresAt())
}
