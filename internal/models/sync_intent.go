package models

import "time"

// Sync intent states.
const (
	IntentPending   = "pending"
	IntentDelivered = "delivered"
	IntentFailed    = "failed"
)

// SyncIntent is one outbox row: a webhook payload waiting for, or done with,
// remote delivery. Seq orders delivery.
type SyncIntent struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement"`
	Namespace  string `gorm:"size:128;index;not null"`
	Action     string `gorm:"size:32;not null"`
	Payload    string `gorm:"type:text;not null"` // JSON webhook body
	RecordIDs  string `gorm:"size:2048"`         // comma separated, for lookup/debugging
	Status     string `gorm:"size:16;index;not null"`
	Attempts   int    `gorm:"not null;default:0"`
	LastError  string `gorm:"size:1024"`
	Message    string `gorm:"size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}
