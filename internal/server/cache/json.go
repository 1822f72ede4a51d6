package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the adapter contract consumed by services and the invalidator.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	ScanDelete(ctx context.Context, pattern string) (int, bool)
	IsReady() bool
}

var _ Cache = (*Store)(nil)

// GetJSON decodes the value at key into a T. Undecodable entries count as a
// miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.Set(ctx, key, raw, ttl)
}

// Remember is a read-through helper: it returns the cached value for key or
// calls load, caches its result and returns it. Cache failures are invisible
// to the caller; load errors are returned as-is and never cached.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := GetJSON[T](ctx, c, key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	SetJSON(ctx, c, key, v, ttl)
	return v, nil
}
