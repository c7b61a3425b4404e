// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ratedarts/fulfillment/internal/config"
	"github.com/ratedarts/fulfillment/internal/models"
)

func Initialize(cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Database connection established successfully")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB, log logrus.FieldLogger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("Error closing database connection")
	} else {
		log.Info("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB, log logrus.FieldLogger) error {
	log.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.Artist{},
		&models.Edition{},
		&models.Size{},
		&models.Product{},
		&models.Variant{},
		&models.ProductImage{},
		&models.Customer{},
		&models.Order{},
		&models.LineItem{},
		&models.AssetTask{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	createIndexes(db, log)

	log.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB, log logrus.FieldLogger) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_products_artist_created ON products(artist_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_variants_product_options ON variants(product_id, option1, option3)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_asset_tasks_product_status ON asset_tasks(product_id, status)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			log.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
}

// Default reference rows. Editions must match the frame layout table.
var (
	defaultEditions = []string{"Canvas", "Paper", "Crystal"}
	defaultSizes    = []models.Size{
		{Display: "8x10", Width: 8, Height: 10, PicsartWidth: 2400},
		{Display: "12x16", Width: 12, Height: 16, PicsartWidth: 3600},
		{Display: "16x20", Width: 16, Height: 20, PicsartWidth: 4800},
		{Display: "18x24", Width: 18, Height: 24, PicsartWidth: 5400},
		{Display: "24x36", Width: 24, Height: 36, PicsartWidth: 7200},
	}
)

// SeedReferenceData inserts editions and sizes that are missing.
func SeedReferenceData(db *gorm.DB, log logrus.FieldLogger) error {
	log.Info("Seeding reference data...")

	for _, display := range defaultEditions {
		edition := models.Edition{Display: display}
		if err := db.Where(models.Edition{Display: display}).FirstOrCreate(&edition).Error; err != nil {
			return fmt.Errorf("failed to seed edition %s: %w", display, err)
		}
	}

	for _, size := range defaultSizes {
		size := size
		if err := db.Where(models.Size{Display: size.Display}).FirstOrCreate(&size).Error; err != nil {
			return fmt.Errorf("failed to seed size %s: %w", size.Display, err)
		}
	}

	log.Info("Reference data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
