package models

import "time"

// BackupRecord describes a backup file kept on the server.
type BackupRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Namespace string `gorm:"size:128;index;not null"`
	FileName  string `gorm:"size:255;not null"`
	FilePath  string `gorm:"size:1024;not null"`
	Size      int64
	Encrypted bool
	CreatedAt time.Time
}
