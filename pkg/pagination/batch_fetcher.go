package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrTooManyPages is returned when a walk exceeds Config.MaxPages.
var ErrTooManyPages = errors.New("page limit reached")

// Config holds batch fetcher configuration
type Config struct {
	// PageSize is the take value of every page request
	PageSize int
	// MaxConcurrency is the number of pages requested per wave
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages bounds a walk against upstreams that never return a short page
	MaxPages int
}

// DefaultConfig returns a safe default configuration
func DefaultConfig() Config {
	return Config{
		PageSize:       50,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       1000,
	}
}

// PageFetcher fetches a single skip/take page.
type PageFetcher interface {
	FetchPage(ctx context.Context, skip, take int) ([]json.RawMessage, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, skip, take int) ([]json.RawMessage, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, skip, take int) ([]json.RawMessage, error) {
	return f(ctx, skip, take)
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll walks every page and returns the items in page order.
// On error the items of the pages before the first failed page are returned
// together with the error.
func (bf *BatchFetcher) FetchAll(ctx context.Context) ([]json.RawMessage, error) {
	start := time.Now()
	var items []json.RawMessage

	for page := 0; ; page += bf.config.MaxConcurrency {
		if page >= bf.config.MaxPages {
			return items, fmt.Errorf("%w (%d pages of %d)", ErrTooManyPages, page, bf.config.PageSize)
		}

		wave := min(bf.config.MaxConcurrency, bf.config.MaxPages-page)
		pages, errs := bf.fetchWave(ctx, page, wave)

		for i := range wave {
			if errs[i] != nil {
				log.Warn().
					Err(errs[i]).
					Int("page", page+i).
					Int("items", len(items)).
					Msg("Page fetch failed - returning partial results")
				return items, fmt.Errorf("fetch page %d (partial data: %d items): %w", page+i, len(items), errs[i])
			}

			items = append(items, pages[i]...)
			if len(pages[i]) < bf.config.PageSize {
				log.Debug().
					Int("pages", page+i+1).
					Int("items", len(items)).
					Dur("duration", time.Since(start)).
					Msg("Fetch complete")
				return items, nil
			}
		}
	}
}

// fetchWave fetches pages [first, first+n) concurrently. errs holds each
// page's own error; the first failure cancels the rest of the wave.
func (bf *BatchFetcher) fetchWave(ctx context.Context, first, n int) (pages [][]json.RawMessage, errs []error) {
	pages = make([][]json.RawMessage, n)
	errs = make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		skip := (first + i) * bf.config.PageSize
		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(gctx, bf.config.Timeout)
			defer cancel()

			data, err := bf.fetcher.FetchPage(pageCtx, skip, bf.config.PageSize)
			if err != nil {
				errs[i] = err
				return err
			}
			pages[i] = data
			return nil
		})
	}
	_ = g.Wait()
	return pages, errs
}
