// Package cache provides a capacity and TTL bounded key/value cache with
// get-or-load semantics.
//
// GetOrLoad tries the cache, then the primary loader, then the fallback
// loader, and caches whatever succeeds. Concurrent loads of the same key are
// collapsed into one call. When neither loader yields a value the result is
// ErrNoData; callers that need reference data should treat that as fatal.
package cache
