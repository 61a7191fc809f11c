package handlers

import (
	"time"

	"task-tracker/backend/internal/middleware"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/monitoring"

	"github.com/gin-gonic/gin"
)

// Router bundles everything SetupRoutes mounts. AuthLimiter is optional.
type Router struct {
	Tasks       *TaskHandler
	Auth        *AuthHandler
	Cache       *CacheHandler
	Tokens      middleware.TokenParser
	AuthLimiter *middleware.DistributedRateLimiter
	AuthPerMin  int
}

func (r Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", monitoring.HealthHandler())
	engine.GET("/ready", monitoring.ReadinessHandler())
	engine.GET("/live", monitoring.LivenessHandler())
	engine.GET("/metrics", monitoring.MetricsHandler())

	v1 := engine.Group("/api/v1")

	auth := v1.Group("/auth")
	if r.AuthLimiter != nil && r.AuthPerMin > 0 {
		auth.Use(r.AuthLimiter.CreateMiddleware("auth", &middleware.RateLimit{
			Rate:    r.AuthPerMin,
			Window:  time.Minute,
			KeyFunc: middleware.IPKeyFunc,
		}))
	}
	auth.POST("/register", r.Auth.Register)
	auth.POST("/login", r.Auth.Login)
	auth.POST("/refresh", r.Auth.Refresh)
	auth.POST("/logout", r.Auth.Logout)

	admin := v1.Group("/admin", middleware.AuthMiddleware(r.Tokens), middleware.RequireRole(models.RoleAdmin))
	{
		tasks := admin.Group("/tasks")
		tasks.POST("", r.Tasks.CreateTask)
		tasks.GET("", r.Tasks.ListTasks)
		tasks.GET("/:id", r.Tasks.GetTask)
		tasks.GET("/author/:email", r.Tasks.ListByAuthor)
		tasks.GET("/assignee/:email", r.Tasks.ListByAssignee)
		tasks.PUT("/:id", r.Tasks.UpdateTask)
		tasks.DELETE("/:id", r.Tasks.DeleteTask)
		tasks.POST("/:id/comments", r.Tasks.AddComment)

		if r.Cache != nil {
			cacheOps := admin.Group("/cache")
			cacheOps.GET("/stats", r.Cache.GetCacheStats)
			cacheOps.GET("/health", r.Cache.GetCacheHealth)
			cacheOps.DELETE("/:key", r.Cache.EvictCacheKey)
		}
	}

	user := v1.Group("/user", middleware.AuthMiddleware(r.Tokens))
	{
		tasks := user.Group("/tasks")
		tasks.GET("", r.Tasks.ListOwnTasks)
		tasks.PUT("/:id/status", r.Tasks.UpdateStatus)
		tasks.POST("/:id/comments", r.Tasks.AddAssigneeComment)
	}
}
