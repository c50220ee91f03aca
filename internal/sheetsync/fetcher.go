package sheetsync

import (
	"context"
	"fmt"

	"github.com/abu1020/tea-notes-premium/internal/models"
)

// DialFunc opens a Reader for a source.
type DialFunc func(ctx context.Context, src Source) (Reader, error)

// Fetcher pulls the full transaction set from the spreadsheet.
type Fetcher struct {
	SheetName string
	Dial      DialFunc
}

func NewFetcher(sheetName string) *Fetcher {
	if sheetName == "" {
		sheetName = "Transactions"
	}
	return &Fetcher{
		SheetName: sheetName,
		Dial: func(ctx context.Context, src Source) (Reader, error) {
			return Dial(ctx, src)
		},
	}
}

// Range is the A1 range holding the 8 transaction columns.
func (f *Fetcher) Range() string {
	return f.SheetName + "!A:H"
}

// FetchAll reads every row. Nothing local is touched here; the caller decides
// what to replace.
func (f *Fetcher) FetchAll(ctx context.Context, src Source) ([]models.Transaction, error) {
	if !src.Configured() {
		return nil, ErrNoCredentials
	}
	r, err := f.Dial(ctx, src)
	if err != nil {
		return nil, err
	}
	values, err := r.ReadValues(ctx, src.SpreadsheetID, f.Range())
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	return ParseRows(values), nil
}
