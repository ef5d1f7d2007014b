// Package cache is the optional shared tier behind the per-repository memo
// tables. Values are opaque bytes; repositories store JSON. The in-memory
// implementation serves a single process, Redis shares results between
// processes and pool slots, and the tiered cache combines both.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Cache is a key-value store with TTL support, safe for concurrent use.
type Cache interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; a zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete is not an error for missing keys.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// GetJSON decodes the value under key into v.
func GetJSON(ctx context.Context, c Cache, key string, v any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
