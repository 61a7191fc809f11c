package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
	OpTimeout    time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "task-tracker:",
		OpTimeout:    2 * time.Second,
	}
}

// RedisCache is the shared L2. Values are stored as JSON under KeyPrefix+key.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
	ownClient bool
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	c := NewRedisCacheWithClient(client, config.KeyPrefix, config.OpTimeout)
	c.ownClient = true
	return c
}

// NewRedisCacheWithClient shares an existing client; Close leaves that client open.
func NewRedisCacheWithClient(client *redis.Client, prefix string, opTimeout time.Duration) *RedisCache {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &RedisCache{client: client, prefix: prefix, opTimeout: opTimeout}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opTimeout)
}

func (c *RedisCache) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	ctx, cancel := c.ctx()
	defer cancel()
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RedisCache) Get(key string, dest interface{}) error {
	ctx, cancel := c.ctx()
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// versionTTL only needs to outlive a fill that is between its version read and its write.
const versionTTL = time.Hour

var setIfVersionScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

func (c *RedisCache) versionKey(key string) string {
	return c.key(key) + "#v"
}

// Version returns how many times key has been invalidated, 0 if never.
func (c *RedisCache) Version(key string) (int64, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	v, err := c.client.Get(ctx, c.versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetIfVersion writes value only while key's version still equals version.
func (c *RedisCache) SetIfVersion(key string, value interface{}, ttl time.Duration, version int64) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache value: %w", err)
	}

	ctx, cancel := c.ctx()
	defer cancel()
	n, err := setIfVersionScript.Run(ctx, c.client,
		[]string{c.key(key), c.versionKey(key)},
		strconv.FormatInt(version, 10), data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate bumps key's version and deletes the value in one transaction, so a fill that
// read the old version can no longer land.
func (c *RedisCache) Invalidate(key string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey(key))
		pipe.Expire(ctx, c.versionKey(key), versionTTL)
		pipe.Del(ctx, c.key(key))
		return nil
	})
	return err
}

func (c *RedisCache) Delete(key string) error {
	ctx, cancel := c.ctx()
	defer cancel()
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *RedisCache) DeletePattern(pattern string) error {
	ctx, cancel := c.ctx()
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.key(pattern), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Exists(key string) (bool, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Stats() map[string]interface{} {
	pool := c.client.PoolStats()
	return map[string]interface{}{
		"type":        "redis",
		"hits":        pool.Hits,
		"misses":      pool.Misses,
		"timeouts":    pool.Timeouts,
		"total_conns": pool.TotalConns,
		"idle_conns":  pool.IdleConns,
	}
}

func (c *RedisCache) Health() error {
	ctx, cancel := c.ctx()
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	if !c.ownClient {
		return nil
	}
	return c.client.Close()
}
