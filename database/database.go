package database

import (
	"fmt"

	"costume-rental/config"
	"costume-rental/internal/domain/costumes"
	"costume-rental/internal/domain/users"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to postgres, tunes the pool and migrates every model.
func Open(cfg *config.Settings, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("✅ Connected and migrated successfully")
	return db, nil
}

// Migrate creates or updates the schema. On postgres it also adds a GIN index for tag containment.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&users.User{},
		&costumes.Costume{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_costumes_tags_gin ON costumes USING GIN (tags)`).Error; err != nil {
			return fmt.Errorf("create tags index: %w", err)
		}
	}
	return nil
}
