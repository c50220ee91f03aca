// Package webhook speaks the spreadsheet webhook protocol: one action-tagged
// JSON document per mutation, answered with {status, message}.
package webhook

import (
	"github.com/abu1020/tea-notes-premium/internal/models"
)

type Action string

const (
	ActionAdd        Action = "add"
	ActionBulkAdd    Action = "bulk_add"
	ActionDelete     Action = "delete"
	ActionBulkDelete Action = "bulk_delete"
	ActionBulkUpdate Action = "bulk_update"
	ActionClear      Action = "clear"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Updates carries the fields a bulk_update changes. Only type is supported.
type Updates struct {
	Type models.TransactionType `json:"type,omitempty"`
}

// Request is the body POSTed to the webhook.
type Request struct {
	Action       Action               `json:"action"`
	Transaction  *models.Transaction  `json:"transaction,omitempty"`
	Transactions []models.Transaction `json:"transactions,omitempty"`
	IDs          []int64              `json:"ids,omitempty"`
	Updates      *Updates             `json:"updates,omitempty"`
}

// Response is what the webhook answers with.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      *int64 `json:"id,omitempty"`
}

func NewAddRequest(tx models.Transaction) Request {
	return Request{Action: ActionAdd, Transaction: &tx}
}

func NewBulkAddRequest(txs []models.Transaction) Request {
	return Request{Action: ActionBulkAdd, Transactions: txs}
}

// NewDeleteRequest sends the whole record; receivers only read transaction.id.
func NewDeleteRequest(tx models.Transaction) Request {
	return Request{Action: ActionDelete, Transaction: &tx}
}

func NewBulkDeleteRequest(ids []int64) Request {
	return Request{Action: ActionBulkDelete, IDs: ids}
}

func NewBulkUpdateRequest(ids []int64, newType models.TransactionType) Request {
	return Request{Action: ActionBulkUpdate, IDs: ids, Updates: &Updates{Type: newType}}
}

func NewClearRequest() Request {
	return Request{Action: ActionClear}
}

// RecordIDs lists the transaction ids a request touches.
func (r Request) RecordIDs() []int64 {
	switch {
	case r.Transaction != nil:
		return []int64{r.Transaction.ID}
	case len(r.Transactions) > 0:
		ids := make([]int64, 0, len(r.Transactions))
		for _, tx := range r.Transactions {
			ids = append(ids, tx.ID)
		}
		return ids
	default:
		return r.IDs
	}
}

func Success(msg string) Response {
	return Response{Status: StatusSuccess, Message: msg}
}

func Failure(msg string) Response {
	return Response{Status: StatusError, Message: msg}
}
