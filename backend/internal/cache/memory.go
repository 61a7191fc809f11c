package cache

import (
	"strings"
	"sync"
	"time"
)

// MemoryCache is the in-process L1: values are kept as given and expire lazily on read
// and eagerly on a background sweep.
type MemoryCache struct {
	store sync.Map
	stop  chan struct{}
	once  sync.Once
}

type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func NewMemoryCache() *MemoryCache {
	return newMemoryCache(time.Minute)
}

func newMemoryCache(sweepEvery time.Duration) *MemoryCache {
	c := &MemoryCache{stop: make(chan struct{})}
	go c.cleanup(sweepEvery)
	return c
}

func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) error {
	c.store.Store(key, &cacheItem{
		value:      value,
		expiration: time.Now().Add(ttl),
	})
	return nil
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	item, exists := c.store.Load(key)
	if !exists {
		return nil, false
	}

	entry := item.(*cacheItem)
	if time.Now().After(entry.expiration) {
		c.store.Delete(key)
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Exists(key string) (bool, error) {
	_, exists := c.Get(key)
	return exists, nil
}

func (c *MemoryCache) Delete(key string) error {
	c.store.Delete(key)
	return nil
}

func (c *MemoryCache) DeletePattern(pattern string) error {
	c.store.Range(func(key, _ interface{}) bool {
		if matchPattern(key.(string), pattern) {
			c.store.Delete(key)
		}
		return true
	})
	return nil
}

func (c *MemoryCache) Clear() error {
	return c.DeletePattern("*")
}

func (c *MemoryCache) Len() int {
	count := 0
	c.store.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (c *MemoryCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"items": c.Len(),
		"type":  "memory",
	}
}

func (c *MemoryCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.store.Range(func(key, value interface{}) bool {
				if now.After(value.(*cacheItem).expiration) {
					c.store.Delete(key)
				}
				return true
			})
		}
	}
}

func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// matchPattern supports "*" and trailing-wildcard prefixes such as "task:*".
func matchPattern(text, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(text, prefix)
	}
	return text == pattern
}
