package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("backup not found")

// Vault keeps backup files on disk, indexed in the database. Files are
// AES-GCM encrypted when a key is set.
type Vault struct {
	DB  *gorm.DB
	Dir string
	Key string
}

func NewVault(db *gorm.DB, dir, key string) *Vault {
	return &Vault{DB: db, Dir: dir, Key: key}
}

// Create writes d to a new file owned by namespace.
func (v *Vault) Create(ctx context.Context, namespace string, d Data) (*models.BackupRecord, error) {
	raw, err := json.MarshalIndent(&d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	encrypted := v.Key != ""
	ext := ".json"
	if encrypted {
		if raw, err = util.EncryptAES(v.Key, raw); err != nil {
			return nil, fmt.Errorf("encrypt backup: %w", err)
		}
		ext = ".bin"
	}

	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	owner := namespace
	if owner == "" {
		owner = "shared"
	}
	fileName := fmt.Sprintf("backup-%s-%s%s", owner, uuid.New().String(), ext)
	filePath := filepath.Join(v.Dir, fileName)

	if err := os.WriteFile(filePath, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	rec := models.BackupRecord{
		Namespace: namespace,
		FileName:  fileName,
		FilePath:  filePath,
		Size:      int64(len(raw)),
		Encrypted: encrypted,
	}
	if err := v.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("save backup record: %w", err)
	}
	return &rec, nil
}

func (v *Vault) List(ctx context.Context, namespace string) ([]models.BackupRecord, error) {
	var list []models.BackupRecord
	if err := v.DB.WithContext(ctx).
		Where("namespace = ?", namespace).
		Order("created_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return list, nil
}

func (v *Vault) find(ctx context.Context, namespace string, id uint) (*models.BackupRecord, error) {
	var rec models.BackupRecord
	err := v.DB.WithContext(ctx).
		Where("id = ? AND namespace = ?", id, namespace).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find backup: %w", err)
	}
	return &rec, nil
}

// Load reads, decrypts and validates a stored backup.
func (v *Vault) Load(ctx context.Context, namespace string, id uint) (*Data, error) {
	rec, err := v.find(ctx, namespace, id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	if rec.Encrypted {
		if raw, err = util.DecryptAES(v.Key, raw); err != nil {
			return nil, fmt.Errorf("decrypt backup: %w", err)
		}
	}
	return Parse(raw)
}

// Delete removes the file first, then its record.
func (v *Vault) Delete(ctx context.Context, namespace string, id uint) error {
	rec, err := v.find(ctx, namespace, id)
	if err != nil {
		return err
	}
	if err := os.Remove(rec.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove backup file: %w", err)
	}
	if err := v.DB.WithContext(ctx).Delete(rec).Error; err != nil {
		return fmt.Errorf("delete backup record: %w", err)
	}
	return nil
}
