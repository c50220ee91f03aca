package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one purchase or payment. Amount is stored redundantly and is
// only re-derived on add and edit.
type Transaction struct {
	ID       int64           `json:"id"`
	Type     TransactionType `json:"type"`
	Amount   float64         `json:"amount"`
	Note     string          `json:"note"`
	Date     string          `json:"date"`
	User     string          `json:"user"`
	Quantity float64         `json:"quantity"`
	Price    float64         `json:"price"`
}

// DeriveAmount returns quantity*price. The product is taken in decimal so
// 3 x 0.1 stores as 0.3, and it is never rounded.
func DeriveAmount(quantity, price float64) float64 {
	f, _ := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Float64()
	return f
}

// Normalize forces the payment quantity and re-derives the amount.
func (t *Transaction) Normalize() {
	if t.Type.IsPayment() {
		t.Quantity = 1
	}
	t.Amount = DeriveAmount(t.Quantity, t.Price)
}

// Dedupe keeps the first transaction of every id and drops ids of zero and
// unknown types. It returns the kept transactions and how many were dropped.
func Dedupe(txs []Transaction) ([]Transaction, int) {
	out := make([]Transaction, 0, len(txs))
	seen := make(map[int64]bool, len(txs))
	for _, tx := range txs {
		if tx.ID == 0 || !tx.Type.Valid() || seen[tx.ID] {
			continue
		}
		seen[tx.ID] = true
		out = append(out, tx)
	}
	return out, len(txs) - len(out)
}

// FormatDate renders a timestamp the way transaction dates are stored.
func FormatDate(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
