// Package sheet applies webhook actions to a spreadsheet treated as a row
// store: one header row, then one row per transaction in 8 fixed columns.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

var ErrSheetNotFound = errors.New("sheet not found")

// Header is written to row 1 of a fresh sheet. Column order is fixed.
var Header = []string{"ID", "Type", "Amount", "Note", "Date", "User", "Quantity", "Price"}

const (
	ColID   = 1
	ColType = 2
	Columns = 8
)

// Sheet is the row store the handler works against. Row numbers are 1-based
// and include the header row.
type Sheet interface {
	Rows() ([][]string, error)
	AppendRows(rows [][]any) error
	DeleteRow(row int) error
	SetCell(row, col int, v any) error
	ClearData() error
	Save() error
}

// Workbook is a Sheet backed by one tab of an XLSX file.
type Workbook struct {
	f    *excelize.File
	name string
	path string
}

// OpenWorkbook opens path, or creates a workbook with a single headed tab when
// the file does not exist yet. An empty path keeps the workbook in memory.
func OpenWorkbook(path, name string) (*Workbook, error) {
	if path != "" {
		f, err := excelize.OpenFile(path)
		switch {
		case err == nil:
			return &Workbook{f: f, name: name, path: path}, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("open workbook: %w", err)
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	w := &Workbook{f: f, name: name, path: path}
	if err := w.Save(); err != nil {
		return nil, err
	}
	return w, nil
}

// File exposes the underlying workbook, mainly for tests.
func (w *Workbook) File() *excelize.File { return w.f }

func (w *Workbook) check() error {
	idx, err := w.f.GetSheetIndex(w.name)
	if err != nil || idx < 0 {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, w.name)
	}
	return nil
}

func (w *Workbook) Rows() ([][]string, error) {
	if err := w.check(); err != nil {
		return nil, err
	}
	rows, err := w.f.GetRows(w.name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func (w *Workbook) AppendRows(rows [][]any) error {
	existing, err := w.Rows()
	if err != nil {
		return err
	}
	next := len(existing) + 1
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(w.name, cell, &rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", next+i, err)
		}
	}
	return nil
}

func (w *Workbook) DeleteRow(row int) error {
	if err := w.check(); err != nil {
		return err
	}
	return w.f.RemoveRow(w.name, row)
}

func (w *Workbook) SetCell(row, col int, v any) error {
	if err := w.check(); err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return w.f.SetCellValue(w.name, cell, v)
}

// ClearData removes every row below the header.
func (w *Workbook) ClearData() error {
	rows, err := w.Rows()
	if err != nil {
		return err
	}
	for r := len(rows); r >= 2; r-- {
		if err := w.f.RemoveRow(w.name, r); err != nil {
			return fmt.Errorf("clear row %d: %w", r, err)
		}
	}
	return nil
}

// Save writes the workbook to its path; in-memory workbooks are a no-op.
func (w *Workbook) Save() error {
	if w.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create sheet dir: %w", err)
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (w *Workbook) Close() error {
	return w.f.Close()
}
