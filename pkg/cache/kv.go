// Package cache implements the pipeline's three-tier cache: full results,
// per-phrase seeds, and per-seed-set candidates. Tiers share one KeyValue
// backend; redis, badger, and an in-memory map are provided.
//
// Cache failures never fail a retrieval. A backend error on read is a
// miss; a backend error on write is logged and dropped.
package cache

import (
	"context"
	"time"
)

// KeyValue is the minimal store contract the cache layer needs. Get and
// Set must be atomic from the caller's perspective; the backing store is
// responsible for that, not the pipeline.
type KeyValue interface {
	// Get returns the value and true on a fresh hit, or (nil, false, nil)
	// on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Close() error
}
