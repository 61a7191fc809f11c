package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"task-tracker/backend/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func setupTestGin() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doRequest(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "success"})
}

func TestRateLimiter_Allow(t *testing.T) {
	router := setupTestGin()
	router.Use(RateLimiter(rate.Limit(1), 1))
	router.GET("/test", okHandler)

	if w := doRequest(router, "127.0.0.1:12345"); w.Code != http.StatusOK {
		t.Errorf("Expected first request to succeed, got status %d", w.Code)
	}
	if w := doRequest(router, "127.0.0.1:12345"); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected second request to be rate limited, got status %d", w.Code)
	}
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	router := setupTestGin()
	router.Use(RateLimiter(rate.Limit(1), 1))
	router.GET("/test", okHandler)

	w1 := doRequest(router, "127.0.0.1:12345")
	w2 := doRequest(router, "192.168.1.1:12345")

	if w1.Code != http.StatusOK {
		t.Errorf("Expected first request to succeed, got status %d", w1.Code)
	}
	if w2.Code != http.StatusOK {
		t.Errorf("Expected second request from different IP to succeed, got status %d", w2.Code)
	}
}

func TestPerMinute(t *testing.T) {
	if got := PerMinute(60); got != rate.Limit(1) {
		t.Errorf("PerMinute(60) = %v, want 1/s", got)
	}
	if got := PerMinute(0); got != rate.Inf {
		t.Errorf("PerMinute(0) = %v, want Inf", got)
	}
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestDistributedRateLimiter_CreateMiddleware(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewDistributedRateLimiter(client)

	limiter.CreateMiddleware("auth", &RateLimit{Rate: 5, Window: time.Minute, KeyFunc: IPKeyFunc})

	if _, exists := limiter.limits["auth"]; !exists {
		t.Error("Expected limit 'auth' to be stored")
	}
}

func TestDistributedRateLimiter_AllowRequests(t *testing.T) {
	client, _ := setupTestRedis(t)

	router := setupTestGin()
	limiter := NewDistributedRateLimiter(client)
	router.Use(limiter.CreateMiddleware("test", &RateLimit{Rate: 2, Window: time.Minute, KeyFunc: IPKeyFunc}))
	router.GET("/test", okHandler)

	for i := 0; i < 2; i++ {
		if w := doRequest(router, "127.0.0.1:12345"); w.Code != http.StatusOK {
			t.Errorf("Expected request %d to succeed, got status %d", i+1, w.Code)
		}
	}

	w := doRequest(router, "127.0.0.1:12345")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected third request to be rate limited, got status %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("Expected X-RateLimit-Limit header 2, got %q", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	router := setupTestGin()
	limiter := NewDistributedRateLimiter(client)
	router.Use(limiter.CreateMiddleware("test", &RateLimit{Rate: 1, Window: time.Minute, KeyFunc: IPKeyFunc}))
	router.GET("/test", okHandler)

	w := doRequest(router, "127.0.0.1:12345")
	if w.Code != http.StatusOK {
		t.Errorf("Expected request to succeed when Redis is down (fail open), got status %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Error") != "true" {
		t.Error("Expected X-RateLimit-Error header when Redis is down")
	}
}

func TestDistributedRateLimiter_BreakerOpensOnOutage(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	router := setupTestGin()
	limiter := NewDistributedRateLimiter(client)
	router.Use(limiter.CreateMiddleware("test", &RateLimit{Rate: 1, Window: time.Minute, KeyFunc: IPKeyFunc}))
	router.GET("/test", okHandler)

	for i := 0; i < 6; i++ {
		doRequest(router, "127.0.0.1:12345")
	}
	if state := limiter.breaker.State(); state != "open" {
		t.Errorf("Expected breaker to open after repeated Redis failures, got %s", state)
	}
	if w := doRequest(router, "127.0.0.1:12345"); w.Code != http.StatusOK {
		t.Errorf("Expected fail-open while breaker is open, got %d", w.Code)
	}
}

func TestDistributedRateLimiter_OnLimitCallback(t *testing.T) {
	client, _ := setupTestRedis(t)

	router := setupTestGin()
	limiter := NewDistributedRateLimiter(client)

	onLimitCalled := false
	router.Use(limiter.CreateMiddleware("test", &RateLimit{
		Rate:    1,
		Window:  time.Minute,
		KeyFunc: IPKeyFunc,
		OnLimit: func(c *gin.Context) {
			onLimitCalled = true
			c.JSON(http.StatusForbidden, gin.H{"custom": "rate limit"})
		},
	}))
	router.GET("/test", okHandler)

	doRequest(router, "127.0.0.1:12345")
	w2 := doRequest(router, "127.0.0.1:12345")

	if !onLimitCalled {
		t.Error("Expected OnLimit callback to be called")
	}
	if w2.Code != http.StatusForbidden {
		t.Errorf("Expected custom status from OnLimit callback, got %d", w2.Code)
	}
}

func TestCallerKeyFunc(t *testing.T) {
	router := setupTestGin()
	router.GET("/with", func(c *gin.Context) {
		WithCaller(c, services.Caller{Email: "user@example.com"})
		c.String(http.StatusOK, CallerKeyFunc(c))
	})
	router.GET("/without", func(c *gin.Context) {
		c.String(http.StatusOK, CallerKeyFunc(c))
	})

	req, _ := http.NewRequest("GET", "/with", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Body.String() != "user:user@example.com" {
		t.Errorf("Expected caller key, got %s", w.Body.String())
	}

	req, _ = http.NewRequest("GET", "/without", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if strings.HasPrefix(w.Body.String(), "user:") {
		t.Errorf("Expected IP fallback, got %s", w.Body.String())
	}
}

func TestRecoveryWithLog(t *testing.T) {
	router := setupTestGin()
	router.Use(RecoveryWithLog(), SecureHeaders())
	router.GET("/test", func(c *gin.Context) {
		panic("boom")
	})

	w := doRequest(router, "127.0.0.1:12345")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected secure headers on every response")
	}
}

func BenchmarkRateLimiter(b *testing.B) {
	router := setupTestGin()
	router.Use(RateLimiter(rate.Limit(1000), 100))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
