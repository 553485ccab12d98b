package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	upstreamRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intervu_upstream_rate_limit_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	upstreamBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intervu_upstream_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to critical rate limit",
	})

	upstreamThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intervu_upstream_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to warning rate limit",
	})
)

// DefaultThrottleDelay is the pause applied to requests in the warning band.
const DefaultThrottleDelay = time.Second

// unixEpochCutoff separates "seconds until reset" from "unix timestamp" in
// the X-RateLimit-Reset header.
const unixEpochCutoff = 1_000_000_000

// Tracker monitors the upstream rate limit and gates requests.
type Tracker struct {
	store  Store
	logger zerolog.Logger

	// ThrottleDelay is how long ShouldAllowRequest waits in the warning band.
	ThrottleDelay time.Duration

	now func() time.Time
}

// NewTracker creates a new rate limit tracker. A nil store keeps state in memory.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:         store,
		logger:        logger,
		ThrottleDelay: DefaultThrottleDelay,
		now:           time.Now,
	}
}

// GetState returns the current rate limit state.
// A missing state, or one whose window has reset, reads as the default healthy state.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}

	now := t.now()
	if state == nil {
		t.logger.Debug().Msg("No rate limit state recorded, assuming healthy")
		return DefaultState(now), nil
	}
	if state.HasReset(now) {
		t.logger.Debug().Time("reset_at", state.ResetAt).Msg("Rate limit window has reset")
		return DefaultState(now), nil
	}
	return state, nil
}

// UpdateFromHeaders records the budget advertised by an upstream response.
// Responses without rate limit headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	now := t.now()

	remainStr := strings.TrimSpace(headers.Get(HeaderRemaining))
	retryAfter, hasRetryAfter := parseRetryAfter(headers.Get(HeaderRetryAfter), now)

	if remainStr == "" && !hasRetryAfter {
		return nil
	}

	state := &State{LastUpdate: now}

	if remainStr != "" {
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remain

		resetAt, err := parseReset(headers.Get(HeaderReset), now)
		if err != nil {
			return err
		}
		state.ResetAt = resetAt
	} else {
		// Retry-After alone means the upstream already refused us.
		state.Remaining = 0
	}

	if hasRetryAfter && now.Add(retryAfter).After(state.ResetAt) {
		state.ResetAt = now.Add(retryAfter)
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	upstreamRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current rate limit state.
// Returns false if the request should be blocked due to critical rate limit.
// Returns true but waits ThrottleDelay first if in warning state.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.ResetAt.Sub(t.now())).
			Msg("Upstream rate limit critical - blocking request")

		upstreamBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("delay", t.ThrottleDelay).
			Msg("Upstream rate limit warning - throttling request")

		upstreamThrottlesTotal.Inc()
		if t.ThrottleDelay > 0 {
			timer := time.NewTimer(t.ThrottleDelay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return true, nil
}

// parseReset reads X-RateLimit-Reset. Small values are seconds until reset,
// values past unixEpochCutoff are unix timestamps.
func parseReset(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now.Add(60 * time.Second), nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}
	if n > unixEpochCutoff {
		return time.Unix(n, 0), nil
	}
	if n < 0 {
		n = 0
	}
	return now.Add(time.Duration(n) * time.Second), nil
}

// parseRetryAfter reads Retry-After in either delay-seconds or HTTP-date form.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// ParseRetryAfter is parseRetryAfter against the current time.
func ParseRetryAfter(value string) (time.Duration, bool) {
	return parseRetryAfter(value, time.Now())
}
