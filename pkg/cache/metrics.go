package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks reads served from memory by tier (fresh, stale)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intervu_cache_hits_total",
			Help: "Total number of query cache reads served from memory",
		},
		[]string{"tier"},
	)

	// CacheMisses tracks reads that had to fetch synchronously
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intervu_cache_misses_total",
			Help: "Total number of query cache reads that fetched synchronously",
		},
	)

	// Fetches tracks upstream fetches by mode
	Fetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intervu_cache_fetches_total",
			Help: "Total number of upstream fetches issued by the query cache",
		},
		[]string{"mode"}, // "sync", "background"
	)

	// FetchErrors tracks failed upstream fetches by mode
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intervu_cache_fetch_errors_total",
			Help: "Total number of failed upstream fetches issued by the query cache",
		},
		[]string{"mode"},
	)

	// Entries tracks the number of cached entries
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intervu_cache_entries",
			Help: "Current number of query cache entries",
		},
	)

	// Listeners tracks the number of registered listeners
	Listeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intervu_cache_listeners",
			Help: "Current number of query cache listeners",
		},
	)

	// ListenerPanics tracks recovered listener panics
	ListenerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intervu_cache_listener_panics_total",
			Help: "Total number of recovered query cache listener panics",
		},
	)
)
