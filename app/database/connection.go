package database

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"OrderDesk/app/config"
	"OrderDesk/app/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormConfig is shared by both drivers
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Unique violations come back as gorm.ErrDuplicatedKey
		TranslateError: true,
	}
}

// buildDSN constructs the postgres connection string.
// Priority: URL > individual fields
func buildDSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		log.Printf("Using DATABASE_URL for database connection")
		return cfg.URL
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)

	log.Printf("Built database connection from config: host=%s port=%d dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	return dsn
}

// Open connects to the configured store and runs migrations
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Driver {
	case "postgres":
		db, err = openPostgres(cfg)
	case "sqlite", "":
		db, err = OpenLocal(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func openPostgres(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gcfg := gormConfig()
	gcfg.PrepareStmt = true

	db, err := gorm.Open(postgres.Open(buildDSN(cfg)), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// RunMigrations creates or updates the order tables
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.KOTEntry{},
		&models.PrinterConfig{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	createIndexes(db)
	return nil
}

// createIndexes adds indexes the struct tags cannot express
func createIndexes(db *gorm.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_kot_entries_order_printed ON kot_entries(order_id, printed_at)",
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			log.Printf("Warning: failed to create index: %v", err)
		}
	}
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsDuplicateKey reports whether err is a unique constraint violation
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
