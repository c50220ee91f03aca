// Package backup builds, validates and stores full snapshots of a user's data:
// transactions plus the icon and theme settings.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/models"
)

const Version = 1

var ErrInvalid = errors.New("invalid backup file")

// Data is the backup document. Field names are shared with the browser app's
// exports so either side can restore the other's files.
type Data struct {
	Version      int                  `json:"version"`
	Timestamp    string               `json:"timestamp"`
	Transactions []models.Transaction `json:"transactions"`
	IconMapping  models.IconMapping   `json:"iconMapping"`
	Theme        string               `json:"theme"`

	// Skipped counts transactions Parse dropped for a repeated id or an
	// unknown type.
	Skipped int `json:"-"`
}

func New(txs []models.Transaction, icons models.IconMapping, theme string, now time.Time) Data {
	if txs == nil {
		txs = []models.Transaction{}
	}
	return Data{
		Version:      Version,
		Timestamp:    models.FormatDate(now),
		Transactions: txs,
		IconMapping:  icons,
		Theme:        theme,
	}
}

// FileName is the download name for a backup taken at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("office-bu-backup-%s.json", now.UTC().Format("2006-01-02"))
}

// Parse decodes and checks a backup document. transactions must be an array
// and iconMapping must be present. Transactions with a repeated id or an
// unknown type are dropped.
func Parse(raw []byte) (*Data, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	txs, ok := fields["transactions"]
	if !ok || len(txs) == 0 || txs[0] != '[' {
		return nil, fmt.Errorf("%w: missing transaction data", ErrInvalid)
	}
	icons, ok := fields["iconMapping"]
	if !ok || string(icons) == "null" {
		return nil, fmt.Errorf("%w: missing icon settings", ErrInvalid)
	}

	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	d.Transactions, d.Skipped = models.Dedupe(d.Transactions)
	return &d, nil
}
