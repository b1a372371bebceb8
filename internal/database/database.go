package database

import (
	"fmt"

	"tuckbot-api/internal/config"
	"tuckbot-api/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open initializes the database connection for the configured store type.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case config.DatabasePostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DatabaseMySQL:
		dialector = mysql.Open(cfg.DSN)
	case config.DatabaseSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("database type %q has no SQL driver", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}
	return db, nil
}

// Migrate creates or updates the videos table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Video{}); err != nil {
		return fmt.Errorf("migrate videos: %w", err)
	}
	return nil
}

// Close releases the pool underneath db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
