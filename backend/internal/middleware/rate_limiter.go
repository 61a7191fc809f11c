package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"task-tracker/backend/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle client's bucket is kept.
const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token bucket kept in process memory.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	visitors := make(map[string]*visitor)
	var mu sync.Mutex
	lastSweep := time.Now()

	getVisitor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(lastSweep) > visitorTTL {
			for key, v := range visitors {
				if now.Sub(v.lastSeen) > visitorTTL {
					delete(visitors, key)
				}
			}
			lastSweep = now
		}

		v, exists := visitors[ip]
		if !exists {
			v = &visitor{limiter: rate.NewLimiter(r, b)}
			visitors[ip] = v
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(c *gin.Context) {
		if !getVisitor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// PerMinute converts a requests-per-minute budget to a rate.Limit.
func PerMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

// DistributedRateLimiter keeps sliding windows in Redis so limits hold across replicas.
// When Redis is unhealthy it fails open.
type DistributedRateLimiter struct {
	redis   *redis.Client
	breaker *cache.CircuitBreaker
	limits  map[string]*RateLimit
}

type RateLimit struct {
	Rate    int
	Window  time.Duration
	KeyFunc func(*gin.Context) string
	OnLimit func(*gin.Context)
}

func NewDistributedRateLimiter(redisClient *redis.Client) *DistributedRateLimiter {
	return &DistributedRateLimiter{
		redis:   redisClient,
		breaker: cache.NewCircuitBreaker(cache.DefaultCircuitBreakerConfig()),
		limits:  make(map[string]*RateLimit),
	}
}

func (rl *DistributedRateLimiter) CreateMiddleware(name string, limit *RateLimit) gin.HandlerFunc {
	rl.limits[name] = limit

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", name, limit.KeyFunc(c))

		var allowed bool
		err := rl.breaker.Execute(func() error {
			var err error
			allowed, err = rl.checkLimit(c.Request.Context(), key, limit)
			return err
		})
		if err != nil {
			log.Printf("⚠️  Rate limiter %s unavailable: %v", name, err)
			c.Header("X-RateLimit-Error", "true")
			c.Next()
			return
		}

		if !allowed {
			if limit.OnLimit != nil {
				limit.OnLimit(c)
				c.Abort()
				return
			}

			c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
			c.Header("X-RateLimit-Window", limit.Window.String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": limit.Window.Seconds(),
			})
			return
		}

		c.Next()
	}
}

func (rl *DistributedRateLimiter) checkLimit(ctx context.Context, key string, limit *RateLimit) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - limit.Window.Nanoseconds()

	pipe := rl.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: now})
	pipe.Expire(ctx, key, limit.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	return countCmd.Val() < int64(limit.Rate), nil
}

func IPKeyFunc(c *gin.Context) string {
	return c.ClientIP()
}

// CallerKeyFunc keys on the authenticated caller, falling back to the client IP.
func CallerKeyFunc(c *gin.Context) string {
	caller, ok := CallerFrom(c)
	if !ok {
		return c.ClientIP()
	}
	return fmt.Sprintf("user:%s", caller.Email)
}
