package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "DB_DRIVER", "ENVIRONMENT", "JWT_SECRET", "ADMIN_EMAIL", "ADMIN_PASSWORD"} {
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Cache.TaskTTL != 5*time.Minute {
		t.Errorf("Expected 5m task TTL, got %v", cfg.Cache.TaskTTL)
	}
	if cfg.Cache.LocalTTL != 0 {
		t.Errorf("Expected local cache copies off by default, got %v", cfg.Cache.LocalTTL)
	}
	if cfg.IsProduction() {
		t.Error("Expected development environment by default")
	}
}

func TestLoadConfig_MemoryDriver(t *testing.T) {
	os.Setenv("DB_DRIVER", "MEMORY")
	defer os.Unsetenv("DB_DRIVER")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("Expected memory driver, got %s", cfg.Database.Driver)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: "8080", Environment: "development"},
			Database:  DatabaseConfig{Driver: DriverPostgres},
			JWT:       JWTConfig{Secret: "default_secret_change_in_production", AccessTTL: time.Hour, RefreshTTL: time.Hour},
			RateLimit: RateLimitConfig{RequestsPerMin: 60, BurstSize: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "unsupported DB_DRIVER"},
		{name: "default secret in production", mutate: func(c *Config) { c.Server.Environment = "production" }, wantErr: "JWT_SECRET"},
		{name: "zero burst", mutate: func(c *Config) { c.RateLimit.BurstSize = 0 }, wantErr: "rate limit"},
		{name: "admin email without password", mutate: func(c *Config) { c.Admin.Email = "admin@example.com" }, wantErr: "ADMIN_EMAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddrHelpers(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: "9000"},
		Redis:  RedisConfig{Host: "redis", Port: "6380"},
		Database: DatabaseConfig{
			Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable",
		},
	}

	if got := cfg.GetServerAddr(); got != "127.0.0.1:9000" {
		t.Errorf("GetServerAddr() = %s", got)
	}
	if got := cfg.GetRedisAddr(); got != "redis:6380" {
		t.Errorf("GetRedisAddr() = %s", got)
	}
	if got := cfg.DSN(); !strings.Contains(got, "dbname=n") || !strings.Contains(got, "host=db") {
		t.Errorf("DSN() = %s", got)
	}
}
