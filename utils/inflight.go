package utils

import (
	"context"
	"sync"
	"time"
)

// InflightStore is an idempotency-key store: a key can be held by at most one
// in-flight operation at a time. Redis-backed when available so the guarantee
// survives multiple server instances; falls back to process-local memory.
type InflightStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInflightStore creates an InflightStore.
func NewInflightStore() *InflightStore {
	return &InflightStore{entries: map[string]time.Time{}}
}

// TryAcquire atomically checks-and-inserts the key. It returns false when the
// key is already held by another operation that has not expired.
func (s *InflightStore) TryAcquire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ok, err := rc.SetNX(ctx, "inflight:"+key, "1", ttl).Result()
		if err == nil {
			return ok
		}
		// Redis unreachable: fall through to the local map rather than
		// blocking the operation entirely.
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if expires, held := s.entries[key]; held && now.Before(expires) {
		return false
	}
	s.entries[key] = now.Add(ttl)
	return true
}

// Release frees the key so the next operation may proceed.
func (s *InflightStore) Release(key string) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Del(ctx, "inflight:"+key).Err()
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}
