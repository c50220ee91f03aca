package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/abu1020/tea-notes-premium/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps keys in the kv_entries table.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Get(ctx context.Context, key string) (string, error) {
	var e models.KVEntry
	if err := s.DB.WithContext(ctx).Where("name = ?", key).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return e.Value, nil
}

func (s *GormStore) Set(ctx context.Context, key, value string) error {
	e := models.KVEntry{Name: key, Value: value}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.DB.WithContext(ctx).Where("name = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
