package application

import "time"

// Window and pagination policy for the resource synchronizers.
const (
	// Platform page-size cap on list endpoints.
	maxPageSize = 100

	// Hard safety cap on paginated walks; functions as the timeout
	// mechanism for a runaway upstream.
	maxPages        = 500
	maxProductPages = 50

	// Persistence batch size, sized to the store's payload limits.
	persistBatchSize = 20

	// First-sync historical lookback windows.
	orderFirstSyncLookback      = 365 * 24 * time.Hour
	settlementFirstSyncLookback = 30 * 24 * time.Hour

	// Defensive incremental windows used when no prior record exists.
	orderIncrementalFallback      = 7 * 24 * time.Hour
	settlementIncrementalFallback = 365 * 24 * time.Hour

	// Trailing window for the product performance report.
	performanceWindow = 30 * 24 * time.Hour
)

// chunk splits records into persistence batches of at most size.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for size < len(items) {
		items, batches = items[size:], append(batches, items[:size:size])
	}
	return append(batches, items)
}
