// Package cache defines the byte-oriented key/value store used for catalog
// search results. Implementations live in memstore and redisstore.
package cache

import (
	"context"
	"time"
)

// Interface is satisfied by both the in-process and the Redis store. MGet
// omits missing keys from the returned map.
type Interface interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
