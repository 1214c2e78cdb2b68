package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// BookListPrefix namespaces cached book-list pages. Publishing a book
// invalidates the whole namespace so the day's new slot shows up immediately.
const BookListPrefix = "cache:books:list:"

// BookListKey builds the cache key for one list page.
func BookListKey(category string, page, pageSize int) string {
	return fmt.Sprintf("%scat=%s:page=%d:size=%d", BookListPrefix, category, page, pageSize)
}

const cacheOpTimeout = 2 * time.Second

// CacheGetBytes returns cached bytes for a key. A nil Redis client (tests,
// local runs without Redis) reads as a miss.
func CacheGetBytes(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// CacheSetJSON marshals v and stores it under key. Failures are logged and
// swallowed; the cache is never allowed to fail a request.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// InvalidateByPrefix deletes every key under the prefix via SCAN, bounded so a
// huge keyspace cannot stall the caller.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var cursor uint64
	for rounds := 0; rounds < 10; rounds++ {
		keys, next, err := rc.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			pipe := rc.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
