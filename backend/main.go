package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-tracker/backend/internal/cache"
	"task-tracker/backend/internal/config"
	"task-tracker/backend/internal/database"
	"task-tracker/backend/internal/handlers"
	"task-tracker/backend/internal/middleware"
	"task-tracker/backend/internal/monitoring"
	"task-tracker/backend/internal/repositories"
	"task-tracker/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Application holds all application dependencies and state
type Application struct {
	Config *config.Config
	Pool   *database.DatabasePool
	Store  repositories.Store
	Cache  *cache.MultiLevelCache
	Redis  *redis.Client
	Router *gin.Engine
	Server *http.Server

	TaskService     *services.CachedTaskService
	CommentService  services.CommentService
	AuthService     *services.AuthServiceImpl
	RegisterService services.RegisterService
}

func main() {
	rollback := flag.Bool("migrate-down", false, "roll back the last migration and exit")
	showVersion := flag.Bool("migrate-version", false, "print the current migration version and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if *rollback || *showVersion {
		if err := runMigrationCommand(cfg, *rollback); err != nil {
			log.Fatalf("❌ Migration command failed: %v", err)
		}
		return
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize application: %v", err)
	}

	app.setupRoutes()
	app.startServer()
}

func migrationConfig(cfg *config.Config) *repositories.MigrationConfig {
	mc := repositories.DefaultMigrationConfig()
	mc.MigrationsPath = cfg.Database.MigrationsPath
	mc.DBName = cfg.Database.Name
	return mc
}

func runMigrationCommand(cfg *config.Config, rollback bool) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations need DB_DRIVER=%s", config.DriverPostgres)
	}

	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	if rollback {
		return repositories.RollbackMigration(pool.DB, migrationConfig(cfg))
	}

	version, dirty, err := repositories.GetMigrationVersion(pool.DB, migrationConfig(cfg))
	if err != nil {
		return err
	}
	log.Printf("📋 Migration version %d (dirty: %v)", version, dirty)
	return nil
}

func initializeApplication(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	log.Println("🚀 Initializing Task Tracker Backend...")
	log.Printf("📋 Environment: %s", cfg.Server.Environment)

	switch cfg.Database.Driver {
	case config.DriverMemory:
		app.Store = repositories.NewMemoryStore()
		log.Println("⚠️  Using in-memory store, data will not survive a restart")
	default:
		pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		app.Pool = pool
		log.Println("✅ Database connected and configured")

		if err := repositories.RunMigrations(pool.DB, migrationConfig(cfg)); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}

		app.Store = repositories.NewGormStore(pool.DB)
		monitoring.RegisterHealthCheck("database", pool.Health)
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()

		if err != nil {
			log.Printf("⚠️  Redis unavailable: %v (continuing with memory cache only)", err)
			redisClient.Close()
		} else {
			app.Redis = redisClient
			redisCache = cache.NewRedisCacheWithClient(redisClient, cache.DefaultCacheConfig().KeyPrefix, cfg.Redis.ReadTimeout)
			monitoring.RegisterHealthCheck("redis", func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
			log.Println("✅ Redis connected")
		}
	}

	app.Cache = cache.NewMultiLevelCache(redisCache).WithLocalTTL(cfg.Cache.LocalTTL)
	if redisCache != nil {
		log.Println("✅ Multi-level cache initialized (Memory L1 + Redis L2)")
	} else {
		log.Println("✅ Memory cache initialized")
	}

	gate := services.NewValidationGate()
	app.RegisterService = services.NewRegisterService(app.Store, gate)
	app.AuthService = services.NewAuthService(app.Store, cfg.JWT)
	app.TaskService = services.NewCachedTaskService(services.NewTaskService(app.Store, gate), app.Store, app.Cache, cfg.Cache.TaskTTL)
	app.CommentService = services.NewCommentService(app.Store, gate, app.TaskService)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.RegisterService.EnsureAdmin(ctx, cfg.Admin); err != nil {
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}

	log.Println("✅ All services initialized")

	return app, nil
}

func (app *Application) setupRoutes() {
	r := gin.New()

	r.Use(gin.Logger())
	r.Use(middleware.RecoveryWithLog())
	r.Use(monitoring.MetricsMiddleware())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.RateLimiter(middleware.PerMinute(app.Config.RateLimit.RequestsPerMin), app.Config.RateLimit.BurstSize))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://host.docker.internal"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router := handlers.Router{
		Tasks:      handlers.NewTaskHandler(app.TaskService, app.CommentService),
		Auth:       handlers.NewAuthHandler(app.RegisterService, app.AuthService),
		Cache:      handlers.NewCacheHandler(app.Cache),
		Tokens:     app.AuthService,
		AuthPerMin: app.Config.RateLimit.AuthPerMin,
	}
	if app.Redis != nil {
		router.AuthLimiter = middleware.NewDistributedRateLimiter(app.Redis)
	}
	router.SetupRoutes(r)

	app.Router = r
}

func (app *Application) startServer() {
	addr := app.Config.GetServerAddr()

	app.Server = &http.Server{
		Addr:         addr,
		Handler:      app.Router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("🛑 Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := app.Server.Shutdown(ctx); err != nil {
			log.Printf("❌ Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Server starting on %s", addr)
	log.Printf("📊 Metrics available at http://%s/metrics", addr)
	log.Printf("💚 Health check at http://%s/health", addr)

	if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("❌ Server failed to start: %v", err)
	}

	app.cleanup()
	log.Println("✅ Server stopped gracefully")
}

func (app *Application) cleanup() {
	log.Println("🧹 Cleaning up resources...")

	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			log.Printf("⚠️  Error closing cache: %v", err)
		}
	}

	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			log.Printf("⚠️  Error closing Redis: %v", err)
		}
	}

	if app.Pool != nil {
		if err := app.Pool.Close(); err != nil {
			log.Printf("⚠️  Error closing database: %v", err)
		}
	}

	log.Println("✅ Cleanup complete")
}
