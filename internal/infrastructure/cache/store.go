// Package cache provides the key-value store abstraction for the analytics
// result cache, the canonical key hierarchy builder, and read-only keyspace
// statistics.
//
// The store is treated as an unreliable external dependency everywhere it is
// used: read failures degrade to cache misses, write failures are skipped
// silently. No caller-visible request ever fails because the store is down.
package cache

import (
	"context"
	"time"
)

// Store abstracts the caching backend. This allows different
// implementations (Redis, in-memory) to be substituted without touching
// production wiring, and an in-memory fake to be injected in tests.
type Store interface {
	// Get returns the raw bytes for key. The second return is false on a
	// miss. Implementations must report unavailability via the error
	// without panicking; callers treat any error as a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL, replacing any
	// existing entry wholesale.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Scan returns all keys with the given prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)

	// DeleteByPattern removes all keys matching a glob-style pattern and
	// returns how many were removed.
	DeleteByPattern(ctx context.Context, pattern string) (int, error)

	// SetNX stores value under key only if the key does not already
	// exist, returning true when the write happened. This is the
	// conditional primitive behind the warming lock.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// Delete removes a single key.
	Delete(ctx context.Context, key string) error

	// DeleteIfValue removes key only while it still holds value, atomically,
	// returning true when the delete happened. This is the release side of
	// the warming lock: a stale holder must never delete a lock another
	// holder has since re-acquired.
	DeleteIfValue(ctx context.Context, key string, value string) (bool, error)
}
