package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/webhook"

	"github.com/rs/zerolog"
)

// Handler applies webhook requests to a Sheet. Requests are applied one at a
// time; each one either succeeds or reports an error response, it never panics
// out to the caller.
type Handler struct {
	mu    sync.Mutex
	sheet Sheet
	log   zerolog.Logger
}

func NewHandler(s Sheet, log zerolog.Logger) *Handler {
	return &Handler{sheet: s, log: log}
}

// HandleJSON decodes body and applies it.
func (h *Handler) HandleJSON(ctx context.Context, body []byte) webhook.Response {
	var req webhook.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return webhook.Failure(fmt.Sprintf("invalid request body: %v", err))
	}
	return h.Handle(ctx, req)
}

func (h *Handler) Handle(ctx context.Context, req webhook.Request) (resp webhook.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("action", string(req.Action)).Msg("sheet action panicked")
			resp = webhook.Failure(fmt.Sprintf("%v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return webhook.Failure(err.Error())
	}

	msg, err := h.apply(req)
	if err != nil {
		h.log.Warn().Err(err).Str("action", string(req.Action)).Msg("sheet action failed")
		return webhook.Failure(err.Error())
	}
	resp = webhook.Success(msg)
	if req.Action == webhook.ActionAdd {
		id := req.Transaction.ID
		resp.ID = &id
	}
	return resp
}

func (h *Handler) apply(req webhook.Request) (string, error) {
	var (
		msg string
		err error
	)
	switch req.Action {
	case webhook.ActionAdd:
		msg, err = h.add(req.Transaction)
	case webhook.ActionBulkAdd:
		msg, err = h.bulkAdd(req.Transactions)
	case webhook.ActionDelete:
		msg, err = h.delete(req.Transaction)
	case webhook.ActionBulkDelete:
		msg, err = h.bulkDelete(req.IDs)
	case webhook.ActionBulkUpdate:
		msg, err = h.bulkUpdate(req.IDs, req.Updates)
	case webhook.ActionClear:
		msg, err = "Cleared", h.sheet.ClearData()
	default:
		return "", fmt.Errorf("invalid action: %q", req.Action)
	}
	if err != nil {
		return "", err
	}
	if err := h.sheet.Save(); err != nil {
		return "", err
	}
	return msg, nil
}

var errMissing = errors.New("missing field")

func (h *Handler) add(tx *models.Transaction) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("%w: transaction", errMissing)
	}
	if err := h.sheet.AppendRows([][]any{toRow(*tx)}); err != nil {
		return "", err
	}
	return "Added", nil
}

func (h *Handler) bulkAdd(txs []models.Transaction) (string, error) {
	if len(txs) > 0 {
		rows := make([][]any, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, toRow(tx))
		}
		if err := h.sheet.AppendRows(rows); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Bulk added %d items", len(txs)), nil
}

// delete removes the lowest matching row, scanning bottom-up.
func (h *Handler) delete(tx *models.Transaction) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("%w: transaction", errMissing)
	}
	rows, err := h.sheet.Rows()
	if err != nil {
		return "", err
	}
	for i := len(rows) - 1; i >= 1; i-- {
		if id, ok := rowID(rows[i]); ok && id == tx.ID {
			if err := h.sheet.DeleteRow(i + 1); err != nil {
				return "", err
			}
			return "Deleted", nil
		}
	}
	return "Transaction not found, already deleted", nil
}

func (h *Handler) bulkDelete(ids []int64) (string, error) {
	if ids == nil {
		return "", fmt.Errorf("%w: ids", errMissing)
	}
	rows, err := h.sheet.Rows()
	if err != nil {
		return "", err
	}
	want := idSet(ids)
	deleted := 0
	// bottom-up so earlier row numbers stay valid
	for i := len(rows) - 1; i >= 1; i-- {
		id, ok := rowID(rows[i])
		if _, hit := want[id]; !ok || !hit {
			continue
		}
		if err := h.sheet.DeleteRow(i + 1); err != nil {
			return "", err
		}
		deleted++
	}
	return fmt.Sprintf("Bulk deleted %d items", deleted), nil
}

func (h *Handler) bulkUpdate(ids []int64, updates *webhook.Updates) (string, error) {
	if ids == nil {
		return "", fmt.Errorf("%w: ids", errMissing)
	}
	if updates == nil {
		return "", fmt.Errorf("%w: updates", errMissing)
	}
	rows, err := h.sheet.Rows()
	if err != nil {
		return "", err
	}
	want := idSet(ids)
	updated := 0
	for i := 1; i < len(rows); i++ {
		id, ok := rowID(rows[i])
		if _, hit := want[id]; !ok || !hit {
			continue
		}
		if updates.Type != "" {
			if err := h.sheet.SetCell(i+1, ColType, string(updates.Type)); err != nil {
				return "", err
			}
		}
		updated++
	}
	return fmt.Sprintf("Bulk updated %d items", updated), nil
}

func toRow(tx models.Transaction) []any {
	return []any{tx.ID, string(tx.Type), tx.Amount, tx.Note, tx.Date, tx.User, tx.Quantity, tx.Price}
}

// rowID reads column A as a number, the way the sheet stores ids.
func rowID(row []string) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
