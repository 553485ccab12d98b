// Package pagination walks skip/take paginated GraphQL lists in parallel.
//
// The upstream does not report a total count, so pages are requested in
// waves of MaxConcurrency and the walk stops at the first page shorter
// than PageSize.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(service, config)
//	items, err := fetcher.FetchAll(ctx)
//
// The batch fetcher:
//   - Requests pages skip=0, PageSize, 2*PageSize, ... one wave at a time
//   - Runs each wave on an errgroup, one goroutine per page
//   - Returns items in page order
//   - On error returns the contiguous prefix fetched so far together with the error
package pagination
