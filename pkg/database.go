package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/quiz-grading-service/internal/config"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
)

// InitDatabase opens the postgres connection pool and migrates the schema.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.Environment == "development" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates the tables and the partial unique index that allows a
// single in_progress attempt per student and test.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Test{},
		&models.Question{},
		&models.Attempt{},
		&models.TestResult{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_in_progress " +
			"ON attempts (student_id, test_id) WHERE status = 'in_progress'",
	).Error; err != nil {
		return fmt.Errorf("failed to create in-progress attempt index: %w", err)
	}
	return nil
}
