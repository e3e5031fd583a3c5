package repository

import (
	"context"
	"time"
)

// StateStore abstracts ephemeral key-value state shared between bot instances.
// Implementations: Redis (production) or in-memory (local dev / single instance).
type StateStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// IncrWithExpiry atomically increments key and returns the new value.
	// The ttl is applied only when the increment created the key.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL returns the remaining lifetime of key, or a negative duration when
	// the key is missing or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// PushCapped prepends value to the list at key, keeps at most maxLen
	// newest entries and refreshes the list expiry when ttl > 0.
	PushCapped(ctx context.Context, key string, value []byte, maxLen int, ttl time.Duration) error
	// Range returns up to limit entries of the list at key, newest first.
	Range(ctx context.Context, key string, limit int) ([][]byte, error)
}
