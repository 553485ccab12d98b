package cache

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultStaleAfter is the age after which an entry is served stale.
	DefaultStaleAfter = 10 * time.Second

	// DefaultExpireAfter is the age after which an entry is no longer served.
	DefaultExpireAfter = 60 * time.Second
)

// ErrInvalidPolicy indicates freshness windows that cannot be ordered into tiers.
var ErrInvalidPolicy = errors.New("invalid cache policy")

// PolicyError describes a rejected Policy.
type PolicyError struct {
	StaleAfter  time.Duration
	ExpireAfter time.Duration
	Reason      string
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %s (stale_after=%s, expire_after=%s)",
		ErrInvalidPolicy, e.Reason, e.StaleAfter, e.ExpireAfter)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PolicyError) Unwrap() error {
	return ErrInvalidPolicy
}

// Tier is the freshness band an entry falls into.
type Tier string

const (
	// TierFresh entries are returned without upstream activity.
	TierFresh Tier = "fresh"

	// TierStale entries are returned and refreshed in the background.
	TierStale Tier = "stale"

	// TierExpired entries are refetched synchronously.
	TierExpired Tier = "expired"
)

// Policy holds the freshness windows applied by Get.
type Policy struct {
	// StaleAfter is the age from which an entry is served stale.
	StaleAfter time.Duration

	// ExpireAfter is the age from which an entry is refetched synchronously.
	// Must be greater than StaleAfter.
	ExpireAfter time.Duration

	// BackgroundRefresh starts a refresh when a stale entry is served.
	BackgroundRefresh bool
}

// DefaultPolicy returns the default freshness windows (10s / 60s, refresh on).
func DefaultPolicy() Policy {
	return Policy{
		StaleAfter:        DefaultStaleAfter,
		ExpireAfter:       DefaultExpireAfter,
		BackgroundRefresh: true,
	}
}

// Validate rejects windows that would leave tier behavior undefined.
func (p Policy) Validate() error {
	if p.StaleAfter <= 0 {
		return &PolicyError{StaleAfter: p.StaleAfter, ExpireAfter: p.ExpireAfter, Reason: "stale_after must be > 0"}
	}
	if p.ExpireAfter <= p.StaleAfter {
		return &PolicyError{StaleAfter: p.StaleAfter, ExpireAfter: p.ExpireAfter, Reason: "expire_after must be > stale_after"}
	}
	return nil
}

// Tier classifies an entry age.
func (p Policy) Tier(age time.Duration) Tier {
	switch {
	case age < p.StaleAfter:
		return TierFresh
	case age < p.ExpireAfter:
		return TierStale
	default:
		return TierExpired
	}
}

// Option adjusts the Policy of a single Get call.
type Option func(*Policy)

// WithStaleAfter overrides StaleAfter.
func WithStaleAfter(d time.Duration) Option {
	return func(p *Policy) { p.StaleAfter = d }
}

// WithExpireAfter overrides ExpireAfter.
func WithExpireAfter(d time.Duration) Option {
	return func(p *Policy) { p.ExpireAfter = d }
}

// WithBackgroundRefresh enables or disables the background refresh of stale entries.
func WithBackgroundRefresh(enabled bool) Option {
	return func(p *Policy) { p.BackgroundRefresh = enabled }
}

// WithPolicy replaces the whole policy.
func WithPolicy(policy Policy) Option {
	return func(p *Policy) { *p = policy }
}
