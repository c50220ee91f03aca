package database

import (
	"fmt"

	"github.com/abu1020/tea-notes-premium/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.KVEntry{},
		&models.SyncIntent{},
		&models.BackupRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
