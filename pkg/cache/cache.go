package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Fetcher performs the upstream request for a query.
// The GraphQL client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, query string, variables Variables) (json.RawMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, query string, variables Variables) (json.RawMessage, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, query string, variables Variables) (json.RawMessage, error) {
	return f(ctx, query, variables)
}

// Listener receives the latest data for a fingerprint.
// A nil argument means the entry was removed. The slice is a private copy.
// Calls for one fingerprint never overlap, and the last call made reflects
// the current state of the entry.
type Listener func(data json.RawMessage)

// Request names a (query, variables) pair.
type Request struct {
	Query     string
	Variables Variables
}

// Config holds the cache configuration.
type Config struct {
	// Fetcher performs upstream requests (required).
	Fetcher Fetcher

	// Policy is applied to every Get unless overridden by options.
	// The zero value selects DefaultPolicy().
	Policy Policy

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Cache is a process-local stale-while-revalidate query cache.
// It is safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	policy  Policy
	now     func() time.Time
	logger  zerolog.Logger

	mu          sync.Mutex
	entries     map[Fingerprint]*Entry
	listeners   map[Fingerprint]map[uint64]Listener
	refreshing  map[Fingerprint]struct{}
	loading     map[Fingerprint]int
	generations map[Fingerprint]uint64
	nextID      uint64

	// pending marks fingerprints whose listeners have not seen the latest
	// state; delivering marks those with a goroutine draining pending.
	pending    map[Fingerprint]bool
	delivering map[Fingerprint]bool

	// flights coalesces concurrent synchronous fetches of one fingerprint.
	flights singleflight.Group
}

// New creates a query cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := log.With().Str("component", "query-cache").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Cache{
		fetcher:     cfg.Fetcher,
		policy:      policy,
		now:         now,
		logger:      logger,
		entries:     make(map[Fingerprint]*Entry),
		listeners:   make(map[Fingerprint]map[uint64]Listener),
		refreshing:  make(map[Fingerprint]struct{}),
		loading:     make(map[Fingerprint]int),
		generations: make(map[Fingerprint]uint64),
		pending:     make(map[Fingerprint]bool),
		delivering:  make(map[Fingerprint]bool),
	}, nil
}

// Policy returns the default policy applied by Get.
func (c *Cache) Policy() Policy {
	return c.policy
}

// Get returns the data for a query, fetching it upstream when no usable entry
// exists. Only the synchronous fetch path returns upstream errors.
// The returned slice is owned by the caller.
func (c *Cache) Get(ctx context.Context, query string, variables Variables, opts ...Option) (json.RawMessage, error) {
	policy := c.policy
	for _, opt := range opts {
		opt(&policy)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	key := FingerprintOf(query, variables)

	c.mu.Lock()
	entry, ok := c.entries[key]
	now := c.now()
	c.mu.Unlock()

	if ok {
		age := entry.Age(now)
		switch policy.Tier(age) {
		case TierFresh:
			CacheHits.WithLabelValues(string(TierFresh)).Inc()
			c.logger.Debug().
				Str("fingerprint", key.String()).
				Dur("age", age).
				Msg("Cache hit (fresh)")
			return clone(entry.Data), nil

		case TierStale:
			CacheHits.WithLabelValues(string(TierStale)).Inc()
			c.logger.Debug().
				Str("fingerprint", key.String()).
				Dur("age", age).
				Bool("background_refresh", policy.BackgroundRefresh).
				Msg("Cache hit (stale)")
			if policy.BackgroundRefresh {
				c.refresh(ctx, key, query, variables)
			}
			return clone(entry.Data), nil
		}

		c.logger.Debug().
			Str("fingerprint", key.String()).
			Dur("age", age).
			Msg("Cache entry expired")
	}

	CacheMisses.Inc()
	return c.load(ctx, key, query, variables)
}

// load fetches synchronously, joining a flight already running for key.
// Invalidate forgets the flight, so later callers start a new one.
func (c *Cache) load(ctx context.Context, key Fingerprint, query string, variables Variables) (json.RawMessage, error) {
	ch := c.flights.DoChan(string(key), func() (any, error) {
		c.mu.Lock()
		gen := c.generations[key]
		c.loading[key]++
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			if c.loading[key]--; c.loading[key] == 0 {
				delete(c.loading, key)
			}
			c.pruneGenerationLocked(key)
			c.mu.Unlock()
		}()

		data, err := c.fetch(context.WithoutCancel(ctx), query, variables, "sync")
		if err != nil {
			return nil, err
		}
		c.store(key, query, gen, data)
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Str("fingerprint", key.String()).Msg("Joined in-flight fetch")
		}
		return clone(res.Val.(json.RawMessage)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refresh starts a detached fetch for key unless one is already running.
func (c *Cache) refresh(ctx context.Context, key Fingerprint, query string, variables Variables) {
	c.mu.Lock()
	if _, busy := c.refreshing[key]; busy {
		c.mu.Unlock()
		return
	}
	c.refreshing[key] = struct{}{}
	gen := c.generations[key]
	c.mu.Unlock()

	refreshCtx := context.WithoutCancel(ctx)
	vars := maps.Clone(variables)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				FetchErrors.WithLabelValues("background").Inc()
				c.logger.Error().
					Str("fingerprint", key.String()).
					Interface("panic", r).
					Msg("Background refresh panicked")
			}
			c.mu.Lock()
			delete(c.refreshing, key)
			c.pruneGenerationLocked(key)
			c.mu.Unlock()
		}()

		data, err := c.fetch(refreshCtx, query, vars, "background")
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("fingerprint", key.String()).
				Msg("Background refresh failed, keeping stale entry")
			return
		}
		c.store(key, query, gen, data)
	}()
}

func (c *Cache) fetch(ctx context.Context, query string, variables Variables, mode string) (json.RawMessage, error) {
	Fetches.WithLabelValues(mode).Inc()
	start := time.Now()

	data, err := c.fetcher.Fetch(ctx, query, variables)
	if err != nil {
		FetchErrors.WithLabelValues(mode).Inc()
		return nil, err
	}
	if data == nil {
		// nil is reserved for "no entry" in listener callbacks
		data = json.RawMessage("null")
	}

	c.logger.Debug().
		Str("mode", mode).
		Dur("duration", time.Since(start)).
		Msg("Fetched query")
	return data, nil
}

// store replaces the entry for key and notifies its listeners. Results of
// fetches that started before an invalidation of key are dropped.
func (c *Cache) store(key Fingerprint, query string, gen uint64, data json.RawMessage) bool {
	c.mu.Lock()
	if c.generations[key] != gen {
		c.mu.Unlock()
		c.logger.Debug().Str("fingerprint", key.String()).Msg("Discarding fetch result from before invalidation")
		return false
	}

	cachedAt := c.now()
	if prev, ok := c.entries[key]; ok && !cachedAt.After(prev.CachedAt) {
		cachedAt = prev.CachedAt.Add(time.Nanosecond)
	}
	c.entries[key] = &Entry{
		Fingerprint: key,
		Query:       query,
		Data:        clone(data),
		CachedAt:    cachedAt,
	}
	drain := c.markPendingLocked(key)
	size := len(c.entries)
	c.mu.Unlock()

	Entries.Set(float64(size))
	if drain {
		c.deliver(key)
	}
	return true
}

// Subscribe registers fn for updates of the entry addressed by (query, variables).
// The returned function removes the registration; calling it again is a no-op.
func (c *Cache) Subscribe(query string, variables Variables, fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	key := FingerprintOf(query, variables)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	set, ok := c.listeners[key]
	if !ok {
		set = make(map[uint64]Listener)
		c.listeners[key] = set
	}
	set[id] = fn
	c.mu.Unlock()

	Listeners.Inc()

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(key, id) })
	}
}

func (c *Cache) unsubscribe(key Fingerprint, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.listeners[key]
	if !ok {
		return
	}
	if _, ok := set[id]; !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(c.listeners, key)
	}
	Listeners.Dec()
}

// Invalidate removes the entries addressed by the given requests and notifies
// their listeners with nil. It never fetches.
func (c *Cache) Invalidate(requests ...Request) {
	for _, req := range requests {
		c.invalidate(FingerprintOf(req.Query, req.Variables))
	}
}

// InvalidateQuery removes every entry fetched with query, whatever its
// variables, and returns how many were removed.
func (c *Cache) InvalidateQuery(query string) int {
	c.mu.Lock()
	var keys []Fingerprint
	for key, entry := range c.entries {
		if entry.Query == query {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if c.invalidate(key) {
			removed++
		}
	}
	return removed
}

func (c *Cache) invalidate(key Fingerprint) bool {
	c.mu.Lock()
	c.flights.Forget(string(key))
	if _, busy := c.refreshing[key]; busy || c.loading[key] > 0 {
		// Fetches already running for key must not store their result.
		c.generations[key]++
	}
	_, existed := c.entries[key]
	if !existed {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, key)
	drain := c.markPendingLocked(key)
	size := len(c.entries)
	c.mu.Unlock()

	Entries.Set(float64(size))
	c.logger.Debug().Str("fingerprint", key.String()).Msg("Invalidated entry")
	if drain {
		c.deliver(key)
	}
	return true
}

// pruneGenerationLocked drops the generation of key once no fetch for it is
// running. c.mu must be held.
func (c *Cache) pruneGenerationLocked(key Fingerprint) {
	if _, busy := c.refreshing[key]; busy || c.loading[key] > 0 {
		return
	}
	delete(c.generations, key)
}

// Peek returns the entry for (query, variables) without touching tiers,
// metrics or the upstream.
func (c *Cache) Peek(query string, variables Variables) (Entry, bool) {
	key := FingerprintOf(query, variables)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	out := *entry
	out.Data = clone(entry.Data)
	return out, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// markPendingLocked records that the listeners of key are behind. It reports
// whether the caller must run deliver; false means nobody listens or another
// goroutine is already delivering for key. c.mu must be held.
func (c *Cache) markPendingLocked(key Fingerprint) bool {
	if len(c.listeners[key]) == 0 {
		return false
	}
	c.pending[key] = true
	if c.delivering[key] {
		return false
	}
	c.delivering[key] = true
	return true
}

// deliver notifies the listeners of key until they have seen its latest
// state. A change made while listeners run, including one made by a
// listener, restarts the round with the new state.
func (c *Cache) deliver(key Fingerprint) {
	for {
		c.mu.Lock()
		if !c.pending[key] {
			delete(c.delivering, key)
			c.mu.Unlock()
			return
		}
		delete(c.pending, key)
		ids := c.listenerIDsLocked(key)
		var data json.RawMessage
		if entry, ok := c.entries[key]; ok {
			data = entry.Data
		}
		c.mu.Unlock()

		for _, id := range ids {
			c.mu.Lock()
			if c.pending[key] {
				c.mu.Unlock()
				break
			}
			fn, ok := c.listeners[key][id]
			c.mu.Unlock()
			if !ok {
				continue
			}
			c.invoke(key, fn, clone(data))
		}
	}
}

// listenerIDsLocked returns the listener ids of key in registration order.
// c.mu must be held.
func (c *Cache) listenerIDsLocked(key Fingerprint) []uint64 {
	set := c.listeners[key]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Cache) invoke(key Fingerprint, fn Listener, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			ListenerPanics.Inc()
			c.logger.Warn().
				Str("fingerprint", key.String()).
				Interface("panic", r).
				Msg("Listener panicked")
		}
	}()
	fn(data)
}

func clone(data json.RawMessage) json.RawMessage {
	return bytes.Clone(data)
}
