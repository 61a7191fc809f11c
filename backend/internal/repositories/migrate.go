package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"
)

type MigrationConfig struct {
	MigrationsPath string
	DBName         string
	MaxRetries     int
	RetryDelay     time.Duration
}

func DefaultMigrationConfig() *MigrationConfig {
	return &MigrationConfig{
		MigrationsPath: "file://migrations",
		DBName:         "task_tracker",
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
	}
}

// coreTables must exist once migrations have run.
var coreTables = []string{"users", "tasks", "comments", "tokens"}

func newMigrator(sqlDB *sql.DB, config *MigrationConfig) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		DatabaseName:          config.DBName,
		MigrationsTable:       "schema_migrations",
		MultiStatementEnabled: true,
		MultiStatementMaxSize: 10 * 1 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(config.MigrationsPath, config.DBName, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

func RunMigrations(db *gorm.DB, config *MigrationConfig) error {
	if config == nil {
		config = DefaultMigrationConfig()
	}

	log.Printf("🔄 Starting database migrations from: %s", config.MigrationsPath)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := waitForDatabase(sqlDB, config.MaxRetries, config.RetryDelay); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	m, err := newMigrator(sqlDB, config)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("📋 No migrations applied yet")
	case err != nil:
		log.Printf("⚠️  Could not get current migration version: %v", err)
	default:
		log.Printf("📋 Current migration version: %d (dirty: %v)", version, dirty)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("✅ Database schema is up to date - no migrations needed")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err = m.Version()
	if err != nil {
		return fmt.Errorf("failed to get final migration version: %w", err)
	}
	log.Printf("✅ Database migrations completed, version %d (dirty: %v)", version, dirty)

	if err := verifyTables(sqlDB); err != nil {
		return err
	}
	return nil
}

func waitForDatabase(db *sql.DB, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		if err := db.Ping(); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			log.Printf("⏳ Database not ready, retrying in %v... (attempt %d/%d)", retryDelay, i+1, maxRetries)
			time.Sleep(retryDelay)
		}
	}
	return fmt.Errorf("database not ready after %d attempts", maxRetries)
}

func verifyTables(db *sql.DB) error {
	for _, table := range coreTables {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to verify table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %s missing after migrations", table)
		}
	}
	log.Printf("📊 Verified tables: %v", coreTables)
	return nil
}

func RollbackMigration(db *gorm.DB, config *MigrationConfig) error {
	if config == nil {
		config = DefaultMigrationConfig()
	}

	log.Println("⬇️  Rolling back last migration...")

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	m, err := newMigrator(sqlDB, config)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	log.Println("✅ Migration rolled back successfully")
	return nil
}

func GetMigrationVersion(db *gorm.DB, config *MigrationConfig) (uint, bool, error) {
	if config == nil {
		config = DefaultMigrationConfig()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get database instance: %w", err)
	}

	m, err := newMigrator(sqlDB, config)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}
