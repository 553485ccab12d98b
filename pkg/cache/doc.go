// Package cache provides the in-memory stale-while-revalidate cache that sits in
// front of the GraphQL transport.
//
// Entries are addressed by a Fingerprint derived from the query text and its
// variables. Every read is classified into one of three freshness tiers:
//
//   - fresh (age < StaleAfter): served from memory, no upstream activity
//   - stale (StaleAfter <= age < ExpireAfter): served from memory, one background
//     refresh is started if none is already running for the fingerprint
//   - expired or missing: the caller blocks on a synchronous fetch
//
// Only the synchronous path can fail. Background refresh errors are logged and
// dropped, and the stale entry stays in place for the next access to retry.
//
// # Basic Usage
//
//	c, err := cache.New(cache.Config{Fetcher: gqlClient})
//	if err != nil {
//		return err
//	}
//
//	data, err := c.Get(ctx, query, cache.Variables{"take": 20})
//
//	// Override the freshness windows for one call
//	data, err = c.Get(ctx, query, nil,
//		cache.WithStaleAfter(2*time.Second),
//		cache.WithExpireAfter(30*time.Second),
//	)
//
// # Subscriptions
//
//	unsubscribe := c.Subscribe(query, vars, func(data json.RawMessage) {
//		if data == nil {
//			// entry was invalidated
//			return
//		}
//		render(data)
//	})
//	defer unsubscribe()
//
// Listeners run synchronously on whichever goroutine replaced or removed the
// entry. If another change of the same fingerprint arrives while they run, that
// goroutine hands the change over instead of calling listeners concurrently, so
// calls for one fingerprint are serialized and the last one always carries the
// current state. Each call gets its own copy of the data, as does every Get
// caller. A panicking listener is recovered and does not affect other listeners.
//
// # Invalidation
//
//	c.Invalidate(cache.Request{Query: query, Variables: vars})
//
// The next Get for an invalidated fingerprint always fetches synchronously. A
// fetch that was already in flight when the invalidation happened still answers
// its own caller but is not written back.
//
// # Metrics
//
//   - intervu_cache_hits_total{tier} - reads served from memory (fresh, stale)
//   - intervu_cache_misses_total - reads that required a synchronous fetch
//   - intervu_cache_fetches_total{mode} - upstream fetches (sync, background)
//   - intervu_cache_fetch_errors_total{mode} - failed upstream fetches
//   - intervu_cache_entries - current number of entries
//   - intervu_cache_listeners - current number of registered listeners
//   - intervu_cache_listener_panics_total - recovered listener panics
package cache
