package cache

import (
	"encoding/json"
	"time"
)

// Entry is a cached query result.
type Entry struct {
	// Fingerprint is the address of this entry.
	Fingerprint Fingerprint `json:"fingerprint"`

	// Query is the query text the entry was fetched with.
	Query string `json:"query"`

	// Data is the GraphQL data member returned by the upstream.
	Data json.RawMessage `json:"data"`

	// CachedAt is when the fetch that produced Data completed.
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how old the entry is relative to now.
// Returns 0 if the clock moved backwards.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.CachedAt)
	if age < 0 {
		return 0
	}
	return age
}
