package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"sync"
	"time"
)

type Cache interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string, dest interface{}) error
	Delete(key string) error
	DeletePattern(pattern string) error
	Exists(key string) (bool, error)
	Stats() map[string]interface{}
	Health() error
	Close() error
}

// VersionedCache can refuse a fill that raced with an invalidation of the same key.
type VersionedCache interface {
	Cache
	Version(key string) (Version, error)
	SetIfVersion(key string, value interface{}, ttl time.Duration, v Version) (bool, error)
	Invalidate(key string) error
}

// Version is a snapshot of a key's invalidation count on this node and in L2.
type Version struct {
	local  uint64
	remote int64
}

// defaultLocalTTL bounds how long L1 keeps a value when an L2 is configured.
const defaultLocalTTL = time.Minute

// versionStripes bounds the memory spent on local versions; keys sharing a stripe only cost
// each other a skipped fill.
const versionStripes = 256

// MultiLevelCache reads L1 (memory) then L2 (Redis). L2 failures are absorbed by the
// circuit breaker and never fail a call; a nil L2 makes it a plain memory cache.
type MultiLevelCache struct {
	l1             *MemoryCache
	l2             *RedisCache
	metrics        *CacheMetrics
	circuitBreaker *CircuitBreaker

	// localTTL caps L1 entries while L2 is shared with other nodes; 0 keeps L1 out of it.
	localTTL time.Duration

	mu       sync.Mutex
	versions [versionStripes]uint64
}

func NewMultiLevelCache(redisCache *RedisCache) *MultiLevelCache {
	return &MultiLevelCache{
		l1:             NewMemoryCache(),
		l2:             redisCache,
		metrics:        NewCacheMetrics(),
		circuitBreaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		localTTL:       defaultLocalTTL,
	}
}

// WithLocalTTL sets how long a node may serve a value from L1 when an L2 is configured.
// Another node's invalidation only reaches this node's L1 through expiry, so 0 disables L1
// for shared deployments. It has no effect without an L2.
func (c *MultiLevelCache) WithLocalTTL(ttl time.Duration) *MultiLevelCache {
	if ttl < 0 {
		ttl = 0
	}
	c.localTTL = ttl
	return c
}

// l1TTL is how long a value written with ttl may live in L1; 0 means skip L1.
func (c *MultiLevelCache) l1TTL(ttl time.Duration) time.Duration {
	if c.l2 == nil {
		return ttl
	}
	if c.localTTL <= 0 {
		return 0
	}
	if ttl <= 0 || ttl > c.localTTL {
		return c.localTTL
	}
	return ttl
}

func stripe(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % versionStripes)
}

func (c *MultiLevelCache) Set(key string, value interface{}, ttl time.Duration) error {
	if d := c.l1TTL(ttl); d > 0 || c.l2 == nil {
		c.l1.Set(key, value, d)
	}
	c.metrics.RecordSet()

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			return c.l2.Set(key, value, ttl)
		})
		if err != nil {
			c.metrics.RecordError()
		}
	}
	return nil
}

func (c *MultiLevelCache) Get(key string, dest interface{}) error {
	if value, found := c.l1.Get(key); found {
		c.metrics.RecordHit()
		return copyValue(value, dest)
	}

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			return c.l2.Get(key, dest)
		})
		if err == nil {
			// Promote the encoded form so later reads cannot alias dest.
			if d := c.l1TTL(0); d > 0 {
				if raw, merr := json.Marshal(dest); merr == nil {
					c.l1.Set(key, json.RawMessage(raw), d)
				}
			}
			c.metrics.RecordHit()
			return nil
		}
		if err != ErrCacheMiss {
			c.metrics.RecordError()
		}
	}

	c.metrics.RecordMiss()
	return ErrCacheMiss
}

// Delete always clears L1 and reports L2 failures, so callers know a stale copy may survive.
func (c *MultiLevelCache) Delete(key string) error {
	c.l1.Delete(key)
	c.metrics.RecordDelete()

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			return c.l2.Delete(key)
		})
		if err != nil {
			c.metrics.RecordError()
		}
		return err
	}
	return nil
}

// Version snapshots key before the value to be cached is read from its source.
func (c *MultiLevelCache) Version(key string) (Version, error) {
	c.mu.Lock()
	v := Version{local: c.versions[stripe(key)]}
	c.mu.Unlock()

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			var err error
			v.remote, err = c.l2.Version(key)
			return err
		})
		if err != nil {
			c.metrics.RecordError()
			return Version{}, err
		}
	}
	return v, nil
}

// SetIfVersion caches value only if key has not been invalidated since v was taken. It
// reports false, with no error, when the fill lost that race.
func (c *MultiLevelCache) SetIfVersion(key string, value interface{}, ttl time.Duration, v Version) (bool, error) {
	if c.l2 != nil {
		var stored bool
		err := c.circuitBreaker.Execute(func() error {
			var err error
			stored, err = c.l2.SetIfVersion(key, value, ttl, v.remote)
			return err
		})
		if err != nil {
			c.metrics.RecordError()
			return false, err
		}
		if !stored {
			return false, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[stripe(key)] != v.local {
		return false, nil
	}
	if d := c.l1TTL(ttl); d > 0 || c.l2 == nil {
		c.l1.Set(key, value, d)
	}
	c.metrics.RecordSet()
	return true, nil
}

// Invalidate removes key and makes every fill started before it a no-op.
func (c *MultiLevelCache) Invalidate(key string) error {
	c.mu.Lock()
	c.versions[stripe(key)]++
	c.l1.Delete(key)
	c.mu.Unlock()
	c.metrics.RecordDelete()

	if c.l2 != nil {
		err := c.circuitBreaker.Execute(func() error {
			return c.l2.Invalidate(key)
		})
		if err != nil {
			c.metrics.RecordError()
		}
		return err
	}
	return nil
}

func (c *MultiLevelCache) DeletePattern(pattern string) error {
	c.l1.DeletePattern(pattern)

	if c.l2 != nil {
		return c.circuitBreaker.Execute(func() error {
			return c.l2.DeletePattern(pattern)
		})
	}
	return nil
}

func (c *MultiLevelCache) Exists(key string) (bool, error) {
	if _, found := c.l1.Get(key); found {
		return true, nil
	}
	if c.l2 != nil {
		return c.l2.Exists(key)
	}
	return false, nil
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":               c.l1.Stats(),
		"metrics":          c.metrics.GetStats(),
		"hit_rate_percent": c.metrics.HitRate(),
		"circuit_breaker":  c.circuitBreaker.GetStats(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

func (c *MultiLevelCache) Health() error {
	if c.l2 != nil {
		return c.l2.Health()
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func (c *MultiLevelCache) GetMetrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) GetCircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

// copyValue deep-copies src into dest through JSON so callers never share L1 memory.
func copyValue(src, dest interface{}) error {
	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("destination must be a pointer, got %T", dest)
	}
	if destValue.IsNil() {
		return fmt.Errorf("destination pointer is nil")
	}

	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal source value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal to destination: %w", err)
	}
	return nil
}
