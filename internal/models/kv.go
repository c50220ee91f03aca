package models

import "time"

// KVEntry is one Local Store key persisted in SQLite.
type KVEntry struct {
	Name      string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }
