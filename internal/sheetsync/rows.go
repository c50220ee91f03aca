package sheetsync

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/abu1020/tea-notes-premium/internal/models"
)

type field int

const (
	fieldID field = iota
	fieldType
	fieldAmount
	fieldNote
	fieldDate
	fieldUser
	fieldQuantity
	fieldPrice
	fieldCount
)

var fieldNames = map[string]field{
	"id":       fieldID,
	"type":     fieldType,
	"amount":   fieldAmount,
	"note":     fieldNote,
	"date":     fieldDate,
	"user":     fieldUser,
	"quantity": fieldQuantity,
	"price":    fieldPrice,
}

// columnMap maps each field to a column index, -1 when absent.
type columnMap [fieldCount]int

var positional = columnMap{0, 1, 2, 3, 4, 5, 6, 7}

// mapHeader reads column positions from the header row. Names are matched
// case-insensitively and anything after the first space or "(" is ignored, so
// "Price (₹)" maps to price. Without a recognizable id column the fixed order
// is used.
func mapHeader(header []interface{}) columnMap {
	m := columnMap{-1, -1, -1, -1, -1, -1, -1, -1}
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cellString(cell)))
		if cut := strings.IndexAny(name, " ("); cut > 0 {
			name = name[:cut]
		}
		if f, ok := fieldNames[name]; ok && m[f] < 0 {
			m[f] = i
		}
	}
	if m[fieldID] < 0 {
		return positional
	}
	return m
}

// ParseRows converts a Sheets value grid into transactions. Row 0 is the
// header. Rows without a usable non-zero id or with an unknown type are
// dropped, and of rows sharing an id only the first is kept.
func ParseRows(values [][]interface{}) []models.Transaction {
	if len(values) == 0 {
		return []models.Transaction{}
	}
	cols := mapHeader(values[0])

	out := make([]models.Transaction, 0, len(values)-1)
	for _, row := range values[1:] {
		get := func(f field) interface{} {
			i := cols[f]
			if i < 0 || i >= len(row) {
				return nil
			}
			return row[i]
		}

		id, ok := cellNumber(get(fieldID))
		if !ok || math.Trunc(id) == 0 {
			continue
		}
		amount, _ := cellNumber(get(fieldAmount))
		qty, _ := cellNumber(get(fieldQuantity))
		price, _ := cellNumber(get(fieldPrice))

		out = append(out, models.Transaction{
			ID:       int64(id),
			Type:     models.TransactionType(strings.ToLower(strings.TrimSpace(cellString(get(fieldType))))),
			Amount:   amount,
			Note:     cellString(get(fieldNote)),
			Date:     cellString(get(fieldDate)),
			User:     cellString(get(fieldUser)),
			Quantity: qty,
			Price:    price,
		})
	}
	out, _ = models.Dedupe(out)
	return out
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func cellNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		// formatted values may carry thousands separators
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
