package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Metrics struct {
	mu              sync.RWMutex
	RequestCount    int64
	RequestDuration time.Duration
	ActiveRequests  int64
	ErrorCount      int64
	StatusCodes     map[string]int64
	Endpoints       map[string]int64
	StartTime       time.Time
	LastRequest     time.Time
	totalDuration   time.Duration
}

// MetricsSnapshot is a point-in-time copy of Metrics; RequestDuration is the mean.
type MetricsSnapshot struct {
	RequestCount    int64            `json:"request_count"`
	RequestDuration time.Duration    `json:"avg_request_duration_ns"`
	ActiveRequests  int64            `json:"active_requests"`
	ErrorCount      int64            `json:"error_count"`
	StatusCodes     map[string]int64 `json:"status_codes"`
	Endpoints       map[string]int64 `json:"endpoints"`
	StartTime       time.Time        `json:"start_time"`
	LastRequest     time.Time        `json:"last_request"`
}

type SystemMetrics struct {
	Uptime         time.Duration `json:"uptime_ns"`
	GoroutineCount int           `json:"goroutines"`
	CPUCount       int           `json:"cpus"`
	GoVersion      string        `json:"go_version"`
	MemoryUsage    MemoryUsage   `json:"memory"`
}

type MemoryUsage struct {
	Alloc      uint64 `json:"alloc_mb"`
	TotalAlloc uint64 `json:"total_alloc_mb"`
	Sys        uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
}

var globalMetrics = &Metrics{
	StatusCodes: make(map[string]int64),
	Endpoints:   make(map[string]int64),
	StartTime:   time.Now(),
}

// MetricsMiddleware counts requests per route template (e.g. "GET /api/v1/admin/tasks/:id").
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		globalMetrics.mu.Lock()
		globalMetrics.ActiveRequests++
		globalMetrics.mu.Unlock()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		globalMetrics.mu.Lock()
		defer globalMetrics.mu.Unlock()

		globalMetrics.ActiveRequests--
		globalMetrics.RequestCount++
		globalMetrics.totalDuration += elapsed
		globalMetrics.RequestDuration = globalMetrics.totalDuration / time.Duration(globalMetrics.RequestCount)
		globalMetrics.LastRequest = time.Now()
		if status >= http.StatusInternalServerError {
			globalMetrics.ErrorCount++
		}
		globalMetrics.StatusCodes[http.StatusText(status)]++
		globalMetrics.Endpoints[c.Request.Method+" "+path]++
	}
}

func GetMetrics() MetricsSnapshot {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	snapshot := MetricsSnapshot{
		RequestCount:    globalMetrics.RequestCount,
		RequestDuration: globalMetrics.RequestDuration,
		ActiveRequests:  globalMetrics.ActiveRequests,
		ErrorCount:      globalMetrics.ErrorCount,
		StatusCodes:     make(map[string]int64, len(globalMetrics.StatusCodes)),
		Endpoints:       make(map[string]int64, len(globalMetrics.Endpoints)),
		StartTime:       globalMetrics.StartTime,
		LastRequest:     globalMetrics.LastRequest,
	}
	for k, v := range globalMetrics.StatusCodes {
		snapshot.StatusCodes[k] = v
	}
	for k, v := range globalMetrics.Endpoints {
		snapshot.Endpoints[k] = v
	}
	return snapshot
}

func GetSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	globalMetrics.mu.RLock()
	start := globalMetrics.StartTime
	globalMetrics.mu.RUnlock()

	return SystemMetrics{
		Uptime:         time.Since(start),
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
		MemoryUsage: MemoryUsage{
			Alloc:      bToMb(m.Alloc),
			TotalAlloc: bToMb(m.TotalAlloc),
			Sys:        bToMb(m.Sys),
			NumGC:      m.NumGC,
		},
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

type HealthCheck struct {
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ns"`
	check       func(ctx context.Context) error
}

type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheck
}

var globalHealthChecker = &HealthChecker{checks: make(map[string]HealthCheck)}

// healthCheckTimeout bounds each individual check.
const healthCheckTimeout = 5 * time.Second

func RegisterHealthCheck(name string, check func(ctx context.Context) error) {
	globalHealthChecker.mu.Lock()
	defer globalHealthChecker.mu.Unlock()
	globalHealthChecker.checks[name] = HealthCheck{Name: name, Status: "unknown", check: check}
}

// RunHealthChecks runs every registered check concurrently.
func RunHealthChecks() map[string]HealthCheck {
	globalHealthChecker.mu.RLock()
	checks := make([]HealthCheck, 0, len(globalHealthChecker.checks))
	for _, hc := range globalHealthChecker.checks {
		checks = append(checks, hc)
	}
	globalHealthChecker.mu.RUnlock()

	results := make(map[string]HealthCheck, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, hc := range checks {
		wg.Add(1)
		go func(hc HealthCheck) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()

			start := time.Now()
			err := hc.check(ctx)
			hc.Duration = time.Since(start)
			hc.LastChecked = time.Now()
			hc.Status = "healthy"
			hc.Message = ""
			if err != nil {
				hc.Status = "unhealthy"
				hc.Message = err.Error()
			}

			mu.Lock()
			results[hc.Name] = hc
			mu.Unlock()
		}(hc)
	}
	wg.Wait()

	globalHealthChecker.mu.Lock()
	for name, hc := range results {
		if _, ok := globalHealthChecker.checks[name]; ok {
			globalHealthChecker.checks[name] = hc
		}
	}
	globalHealthChecker.mu.Unlock()

	return results
}

func allHealthy(checks map[string]HealthCheck) bool {
	for _, hc := range checks {
		if hc.Status != "healthy" {
			return false
		}
	}
	return true
}

func MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"application": GetMetrics(),
			"system":      GetSystemMetrics(),
			"timestamp":   time.Now().UTC(),
		})
	}
}

func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := RunHealthChecks()
		status, code := "healthy", http.StatusOK
		if !allHealthy(checks) {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
		})
	}
}

func ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allHealthy(RunHealthChecks()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
			"uptime": GetSystemMetrics().Uptime.String(),
		})
	}
}
