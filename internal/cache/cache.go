// Package cache provides the route-cache capability: a key/value store with
// TTL semantics and a per-key mutual-exclusion primitive, backed either by
// Redis (shared across instances) or by a local bbolt file.
package cache

import (
	"context"
	"time"
)

// lockKeyPrefix namespaces lock keys away from value keys in shared stores.
const lockKeyPrefix = "lock:route:"

// Store is the minimal contract route caches must satisfy.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Get returns the payload stored under key, or nil if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set upserts payload under key with the given TTL. Callers must skip
	// the call entirely when the effective TTL is zero.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// AcquireLock attempts to take the per-key lock. It returns a release
	// token on success and "" when the lock is already held elsewhere.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)

	// ReleaseLock releases the lock if token still owns it. It is a no-op
	// when the lock is not held or the token does not match.
	ReleaseLock(ctx context.Context, key string, token string) error

	// Close releases underlying connections or handles. Idempotent.
	Close() error
}

// WaitForValue polls s.Get up to attempts times with a fixed delay between
// attempts, returning the first value observed or nil once exhausted. This
// is the thundering-herd mitigation for callers that lost the lock race.
func WaitForValue(ctx context.Context, s Store, key string, attempts int, delay time.Duration) ([]byte, error) {
	for i := 0; i < attempts; i++ {
		payload, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			return payload, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, nil
}
