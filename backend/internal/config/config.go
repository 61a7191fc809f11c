package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"task-tracker/backend/internal/utils"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        string
	MigrationsPath  string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

type RateLimitConfig struct {
	RequestsPerMin int
	BurstSize      int
	AuthPerMin     int
}

type CacheConfig struct {
	TaskTTL time.Duration
	// LocalTTL caps in-process copies when Redis is shared; 0 reads Redis every time.
	LocalTTL time.Duration
}

// AdminConfig seeds the initial administrator account on startup.
type AdminConfig struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// LoadConfig reads configuration from the environment, loading a .env file first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("📄 No .env file found, using process environment")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         utils.GetEnv("SERVER_HOST", "0.0.0.0"),
			Port:         utils.GetEnv("SERVER_PORT", "8080"),
			Environment:  utils.GetEnv("ENVIRONMENT", "development"),
			ReadTimeout:  utils.GetEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: utils.GetEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  utils.GetEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(utils.GetEnv("DB_DRIVER", DriverPostgres)),
			Host:            utils.GetEnv("DB_HOST", "localhost"),
			Port:            utils.GetEnv("DB_PORT", "5432"),
			User:            utils.GetEnv("DB_USER", "postgres"),
			Password:        utils.GetEnv("DB_PASSWORD", "postgres"),
			Name:            utils.GetEnv("DB_NAME", "task_tracker"),
			SSLMode:         utils.GetEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    utils.GetEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    utils.GetEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: utils.GetEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: utils.GetEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
			LogLevel:        utils.GetEnv("DB_LOG_LEVEL", "warn"),
			MigrationsPath:  utils.GetEnv("DB_MIGRATIONS_PATH", "file://migrations"),
		},
		Redis: RedisConfig{
			Enabled:      utils.GetEnvAsBool("REDIS_ENABLED", true),
			Host:         utils.GetEnv("REDIS_HOST", "localhost"),
			Port:         utils.GetEnv("REDIS_PORT", "6379"),
			Password:     utils.GetEnv("REDIS_PASSWORD", ""),
			DB:           utils.GetEnvAsInt("REDIS_DB", 0),
			PoolSize:     utils.GetEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: utils.GetEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
			MaxRetries:   utils.GetEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  utils.GetEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  utils.GetEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: utils.GetEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		JWT: JWTConfig{
			Secret:     utils.GetEnv("JWT_SECRET", "default_secret_change_in_production"),
			AccessTTL:  utils.GetEnvAsDuration("JWT_ACCESS_TTL", time.Hour),
			RefreshTTL: utils.GetEnvAsDuration("JWT_REFRESH_TTL", 24*time.Hour),
			Issuer:     utils.GetEnv("JWT_ISSUER", "task-tracker"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMin: utils.GetEnvAsInt("RATE_LIMIT_PER_MIN", 600),
			BurstSize:      utils.GetEnvAsInt("RATE_LIMIT_BURST", 50),
			AuthPerMin:     utils.GetEnvAsInt("RATE_LIMIT_AUTH_PER_MIN", 20),
		},
		Cache: CacheConfig{
			TaskTTL:  utils.GetEnvAsDuration("CACHE_TASK_TTL", 5*time.Minute),
			LocalTTL: utils.GetEnvAsDuration("CACHE_LOCAL_TTL", 0),
		},
		Admin: AdminConfig{
			Email:     utils.GetEnv("ADMIN_EMAIL", ""),
			Password:  utils.GetEnv("ADMIN_PASSWORD", ""),
			FirstName: utils.GetEnv("ADMIN_FIRST_NAME", "Admin"),
			LastName:  utils.GetEnv("ADMIN_LAST_NAME", "User"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT must be set"))
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.IsProduction() && c.JWT.Secret == "default_secret_change_in_production" {
		errs = append(errs, errors.New("JWT_SECRET must be changed in production"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("JWT TTLs must be positive"))
	}
	if c.RateLimit.RequestsPerMin <= 0 || c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("rate limit values must be positive"))
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Database.Host, c.Database.User, c.Database.Password, c.Database.Name, c.Database.Port, c.Database.SSLMode)
}
