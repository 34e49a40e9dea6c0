// Package resilience provides fault-tolerance patterns for the pieces of a
// tile pipeline that touch shared or external resources.
//
// This package includes:
//   - Retry: retries failed operations with exponential backoff
//   - CircuitBreaker: fails fast once a resource keeps failing
//   - Bulkhead: bounds concurrent access to isolate failures
//   - RateLimiter: controls request rate with a token bucket
//
// The output file driver combines Retry with a CircuitBreaker around tile
// writes; the HTTP server puts a RateLimiter and a Bulkhead in front of
// on-demand tile computation:
//
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 100, Burst: 20})
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 8})
//
//	if !rl.Allow() {
//	    return errors.RateLimited()
//	}
//	info, err := resilience.ExecuteWithResult(bh, ctx, func() (task.Info, error) {
//	    return eng.ExecuteTile(ctx, zoom, row, col)
//	})
package resilience
