package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const taskID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

func resetGlobalMetrics() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.RequestCount = 0
	globalMetrics.RequestDuration = 0
	globalMetrics.ActiveRequests = 0
	globalMetrics.ErrorCount = 0
	globalMetrics.StatusCodes = make(map[string]int64)
	globalMetrics.Endpoints = make(map[string]int64)
	globalMetrics.StartTime = time.Now()
	globalMetrics.LastRequest = time.Time{}
	globalMetrics.totalDuration = 0
}

func resetGlobalHealthChecker() {
	globalHealthChecker.mu.Lock()
	defer globalHealthChecker.mu.Unlock()
	globalHealthChecker.checks = make(map[string]HealthCheck)
}

// newTaskRouter mirrors the task routes with canned responses.
func newTaskRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())

	admin := router.Group("/api/v1/admin/tasks")
	admin.GET("/:id", func(c *gin.Context) {
		if c.Param("id") != taskID {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": taskID})
	})
	admin.DELETE("/:id", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})

	user := router.Group("/api/v1/user/tasks")
	user.PUT("/:id/status", func(c *gin.Context) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the assignee may change the status"})
	})

	router.GET("/health", HealthHandler())
	router.GET("/ready", ReadinessHandler())
	router.GET("/live", LivenessHandler())
	router.GET("/metrics", MetricsHandler())
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMetricsMiddleware_TaskRoutes(t *testing.T) {
	resetGlobalMetrics()
	router := newTaskRouter()

	serve(router, "GET", "/api/v1/admin/tasks/"+taskID)
	serve(router, "GET", "/api/v1/admin/tasks/7ca7b810-9dad-11d1-80b4-00c04fd430c8")
	serve(router, "PUT", "/api/v1/user/tasks/"+taskID+"/status?status=DONE")
	serve(router, "DELETE", "/api/v1/admin/tasks/"+taskID)
	serve(router, "GET", "/api/v1/unknown")

	m := GetMetrics()
	if m.RequestCount != 5 {
		t.Errorf("Expected 5 requests, got %d", m.RequestCount)
	}
	if m.ActiveRequests != 0 {
		t.Errorf("Expected no active requests, got %d", m.ActiveRequests)
	}
	if m.ErrorCount != 1 {
		t.Errorf("Only the 500 should count as an error, got %d", m.ErrorCount)
	}

	endpoints := map[string]int64{
		"GET /api/v1/admin/tasks/:id":       2,
		"PUT /api/v1/user/tasks/:id/status": 1,
		"DELETE /api/v1/admin/tasks/:id":    1,
		"GET /api/v1/unknown":               1,
	}
	for endpoint, want := range endpoints {
		if got := m.Endpoints[endpoint]; got != want {
			t.Errorf("Endpoints[%q] = %d, want %d (all: %v)", endpoint, got, want, m.Endpoints)
		}
	}

	statuses := map[string]int64{"OK": 1, "Not Found": 2, "Forbidden": 1, "Internal Server Error": 1}
	for status, want := range statuses {
		if got := m.StatusCodes[status]; got != want {
			t.Errorf("StatusCodes[%q] = %d, want %d", status, got, want)
		}
	}
	if m.LastRequest.IsZero() {
		t.Error("LastRequest should be set")
	}
}

func TestGetMetrics_ReturnsCopy(t *testing.T) {
	resetGlobalMetrics()
	router := newTaskRouter()
	serve(router, "GET", "/api/v1/admin/tasks/"+taskID)

	snapshot := GetMetrics()
	snapshot.Endpoints["GET /api/v1/admin/tasks/:id"] = 99

	if got := GetMetrics().Endpoints["GET /api/v1/admin/tasks/:id"]; got != 1 {
		t.Errorf("Mutating a snapshot leaked into the live metrics: %d", got)
	}
}

func TestMetricsMiddleware_ConcurrentRequests(t *testing.T) {
	resetGlobalMetrics()
	router := newTaskRouter()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				serve(router, "GET", "/api/v1/admin/tasks/"+taskID)
				GetMetrics()
			}
		}()
	}
	wg.Wait()

	m := GetMetrics()
	if m.RequestCount != workers*perWorker {
		t.Errorf("Expected %d requests, got %d", workers*perWorker, m.RequestCount)
	}
	if m.ActiveRequests != 0 {
		t.Errorf("Expected no active requests, got %d", m.ActiveRequests)
	}
}

// registerServiceChecks registers the same checks main does, against test backends.
func registerServiceChecks(t *testing.T) (*miniredis.Miniredis, *gorm.DB) {
	t.Helper()
	resetGlobalHealthChecker()
	t.Cleanup(resetGlobalHealthChecker)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	RegisterHealthCheck("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	RegisterHealthCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	return mr, db
}

func TestRunHealthChecks_DatabaseAndRedis(t *testing.T) {
	mr, db := registerServiceChecks(t)

	results := RunHealthChecks()
	for _, name := range []string{"database", "redis"} {
		hc, ok := results[name]
		if !ok {
			t.Fatalf("missing %s check in %v", name, results)
		}
		if hc.Status != "healthy" || hc.Message != "" {
			t.Errorf("%s: expected healthy, got %s (%s)", name, hc.Status, hc.Message)
		}
		if hc.LastChecked.IsZero() {
			t.Errorf("%s: LastChecked should be set", name)
		}
	}

	mr.Close()
	sqlDB, _ := db.DB()
	sqlDB.Close()

	results = RunHealthChecks()
	for _, name := range []string{"database", "redis"} {
		if hc := results[name]; hc.Status != "unhealthy" || hc.Message == "" {
			t.Errorf("%s: expected unhealthy with a message, got %s (%q)", name, hc.Status, hc.Message)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	mr, _ := registerServiceChecks(t)
	router := newTaskRouter()

	w := serve(router, "GET", "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 while backends are up, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Status string                 `json:"status"`
		Checks map[string]HealthCheck `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad health body: %v", err)
	}
	if body.Status != "healthy" || len(body.Checks) != 2 {
		t.Errorf("Unexpected health body: %+v", body)
	}

	if w := serve(router, "GET", "/ready"); w.Code != http.StatusOK {
		t.Errorf("Expected ready, got %d", w.Code)
	}

	mr.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusServiceUnavailable},
		{"/ready", http.StatusServiceUnavailable},
		{"/live", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if w := serve(router, "GET", tt.path); w.Code != tt.want {
				t.Errorf("Expected %d with redis down, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestMetricsHandler_Body(t *testing.T) {
	resetGlobalMetrics()
	router := newTaskRouter()
	serve(router, "GET", "/api/v1/admin/tasks/"+taskID)

	w := serve(router, "GET", "/metrics")
	var body struct {
		Application MetricsSnapshot `json:"application"`
		System      SystemMetrics   `json:"system"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad metrics body: %v", err)
	}
	if body.Application.Endpoints["GET /api/v1/admin/tasks/:id"] != 1 {
		t.Errorf("Expected the task read to be reported, got %v", body.Application.Endpoints)
	}
	if body.System.GoroutineCount <= 0 || body.System.CPUCount <= 0 || body.System.GoVersion == "" {
		t.Errorf("Unexpected system metrics: %+v", body.System)
	}
}

func TestBToMb(t *testing.T) {
	tests := []struct {
		in   uint64
		want uint64
	}{
		{0, 0},
		{1024*1024 - 1, 0},
		{1024 * 1024, 1},
		{5 * 1024 * 1024, 5},
	}
	for _, tt := range tests {
		if got := bToMb(tt.in); got != tt.want {
			t.Errorf("bToMb(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
