package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/ledger"
	"github.com/abu1020/tea-notes-premium/internal/models"

	"github.com/xuri/excelize/v2"
)

// Headers of the transaction table, shared by CSV and XLSX.
var Headers = []string{"ID", "Date", "User", "Type", "Note", "Quantity", "Price (₹)", "Amount (₹)"}

func CSVFileName(now time.Time) string {
	return fmt.Sprintf("office-bu-export-%s.csv", now.UTC().Format("2006-01-02"))
}

func XLSXFileName(now time.Time) string {
	return fmt.Sprintf("office-bu-export-%s.xlsx", now.UTC().Format("2006-01-02"))
}

func (f *Formatter) row(tx models.Transaction) []string {
	return []string{
		strconv.FormatInt(tx.ID, 10),
		f.Date(tx.Date),
		tx.User,
		string(tx.Type),
		tx.Note,
		strconv.FormatFloat(tx.Quantity, 'f', -1, 64),
		fixed2(tx.Price),
		fixed2(tx.Amount),
	}
}

// WriteCSV writes a header line and one line per transaction.
func (f *Formatter) WriteCSV(w io.Writer, txs []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txs {
		if err := cw.Write(f.row(tx)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	sheetTransactions = "Transactions"
	sheetSummary      = "Summary"
)

// WriteXLSX writes a workbook with the transaction table and a summary tab.
func (f *Formatter) WriteXLSX(w io.Writer, txs []models.Transaction) error {
	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName("Sheet1", sheetTransactions); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	bold, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = x.SetCellValue(sheetTransactions, cell, h)
	}
	_ = x.SetRowStyle(sheetTransactions, 1, 1, bold)

	for idx, tx := range txs {
		row := idx + 2
		values := []any{tx.ID, f.Date(tx.Date), tx.User, string(tx.Type), tx.Note, tx.Quantity, tx.Price, tx.Amount}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := x.SetSheetRow(sheetTransactions, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	_ = x.SetColWidth(sheetTransactions, "A", "A", 16)
	_ = x.SetColWidth(sheetTransactions, "B", "B", 20)
	_ = x.SetColWidth(sheetTransactions, "C", "D", 12)
	_ = x.SetColWidth(sheetTransactions, "E", "E", 30)
	_ = x.SetColWidth(sheetTransactions, "F", "H", 12)

	if err := f.writeSummary(x, ledger.Summarize(txs), bold); err != nil {
		return err
	}

	if err := x.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (f *Formatter) writeSummary(x *excelize.File, s ledger.Summary, bold int) error {
	if _, err := x.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][]any{
		{"Total spent", f.Money(s.TotalSpent)},
		{"Total paid", f.Money(s.TotalPaid)},
		{"Balance", f.Money(s.Balance)},
		{"Transactions", s.Count},
		{"Items consumed", s.TotalQuantity},
		{},
		{"Type", "Count", "Amount"},
	}
	for _, t := range s.ByType {
		rows = append(rows, []any{string(t.Type), t.Count, f.Money(t.Amount)})
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := x.SetSheetRow(sheetSummary, cell, &rows[i]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	_ = x.SetRowStyle(sheetSummary, 7, 7, bold)
	_ = x.SetColWidth(sheetSummary, "A", "C", 16)
	return nil
}
