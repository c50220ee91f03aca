package ledger

import (
	"github.com/abu1020/tea-notes-premium/internal/models"

	"github.com/shopspring/decimal"
)

// TypeTotal aggregates one category.
type TypeTotal struct {
	Type   models.TransactionType `json:"type"`
	Count  int                    `json:"count"`
	Amount float64                `json:"amount"`
}

// Summary is the dashboard view: what was spent on consumables, what was paid
// in, and the outstanding balance (spent minus paid). TotalQuantity counts
// consumed items only; payments are left out.
type Summary struct {
	TotalSpent    float64     `json:"total_spent"`
	TotalPaid     float64     `json:"total_paid"`
	Balance       float64     `json:"balance"`
	TotalQuantity float64     `json:"total_quantity"`
	Count         int         `json:"count"`
	ByType        []TypeTotal `json:"by_type"`
}

// Summarize totals a list of transactions.
func Summarize(items []models.Transaction) Summary {
	spent, paid, qty := decimal.Zero, decimal.Zero, decimal.Zero
	perType := make(map[models.TransactionType]decimal.Decimal, len(models.TransactionTypes))
	counts := make(map[models.TransactionType]int, len(models.TransactionTypes))

	for _, tx := range items {
		amt := decimal.NewFromFloat(tx.Amount)
		if tx.Type.IsPayment() {
			paid = paid.Add(amt)
		} else {
			spent = spent.Add(amt)
			qty = qty.Add(decimal.NewFromFloat(tx.Quantity))
		}
		perType[tx.Type] = perType[tx.Type].Add(amt)
		counts[tx.Type]++
	}

	s := Summary{
		TotalSpent:    spent.Round(2).InexactFloat64(),
		TotalPaid:     paid.Round(2).InexactFloat64(),
		Balance:       spent.Sub(paid).Round(2).InexactFloat64(),
		TotalQuantity: qty.InexactFloat64(),
		Count:         len(items),
		ByType:        make([]TypeTotal, 0, len(models.TransactionTypes)),
	}
	for _, t := range models.TransactionTypes {
		s.ByType = append(s.ByType, TypeTotal{
			Type:   t,
			Count:  counts[t],
			Amount: perType[t].Round(2).InexactFloat64(),
		})
	}
	return s
}

// Summary totals the current collection.
func (r *Repository) Summary() Summary {
	return Summarize(r.List())
}
