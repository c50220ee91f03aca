package handler

import (
	"net/http"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/ledger"
	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/gin-gonic/gin"
)

// TransactionHandler serves the transaction collection of the caller's namespace.
type TransactionHandler struct {
	App *app.Controller
}

func NewTransactionHandler(a *app.Controller) *TransactionHandler {
	return &TransactionHandler{App: a}
}

// addReq is either a single draft or {"items":[...]}.
type addReq struct {
	ledger.Draft
	Items []ledger.Draft `json:"items"`
}

type idsReq struct {
	IDs []int64 `json:"ids" binding:"required,min=1"`
}

type categoryReq struct {
	IDs  []int64                `json:"ids" binding:"required,min=1"`
	Type models.TransactionType `json:"type" binding:"required"`
}

// List GET /api/transactions?q=
func (h *TransactionHandler) List(c *gin.Context) {
	txs, err := h.App.List(c.Request.Context(), namespace(c), c.Query("q"))
	if err != nil {
		fail(c, err, "failed to load transactions")
		return
	}
	util.Success(c, util.Response{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Create POST /api/transactions
func (h *TransactionHandler) Create(c *gin.Context) {
	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
		return
	}
	drafts := req.Items
	if len(drafts) == 0 {
		drafts = []ledger.Draft{req.Draft}
	}

	added, t, err := h.App.Add(c.Request.Context(), namespace(c), drafts)
	if err != nil {
		fail(c, err, "failed to add transactions")
		return
	}
	respondSynced(c, h.App, util.Response{
		"transactions": added,
		"count":        len(added),
	}, t)
}

// Update PUT /api/transactions/:id
func (h *TransactionHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var d ledger.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
		return
	}

	tx, t, err := h.App.Update(c.Request.Context(), namespace(c), id, d)
	if err != nil {
		fail(c, err, "failed to update transaction")
		return
	}
	respondSynced(c, h.App, util.Response{"transaction": tx}, t)
}

// Delete DELETE /api/transactions/:id. Unknown ids succeed with deleted=false.
func (h *TransactionHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	found, t, err := h.App.Delete(c.Request.Context(), namespace(c), id)
	if err != nil {
		fail(c, err, "failed to delete transaction")
		return
	}
	respondSynced(c, h.App, util.Response{"deleted": found}, t)
}

// BulkDelete POST /api/transactions/bulk-delete
func (h *TransactionHandler) BulkDelete(c *gin.Context) {
	var req idsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "ids are required")
		return
	}
	n, t, err := h.App.DeleteBulk(c.Request.Context(), namespace(c), req.IDs)
	if err != nil {
		fail(c, err, "failed to delete transactions")
		return
	}
	respondSynced(c, h.App, util.Response{"deleted": n}, t)
}

// BulkCategory POST /api/transactions/bulk-category
func (h *TransactionHandler) BulkCategory(c *gin.Context) {
	var req categoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "ids and type are required")
		return
	}
	n, t, err := h.App.BulkSetCategory(c.Request.Context(), namespace(c), req.IDs, req.Type)
	if err != nil {
		fail(c, err, "failed to update transactions")
		return
	}
	respondSynced(c, h.App, util.Response{"updated": n}, t)
}

// Clear DELETE /api/transactions
func (h *TransactionHandler) Clear(c *gin.Context) {
	t, err := h.App.Clear(c.Request.Context(), namespace(c))
	if err != nil {
		fail(c, err, "failed to clear transactions")
		return
	}
	respondSynced(c, h.App, util.Response{"cleared": true}, t)
}

// Summary GET /api/summary
func (h *TransactionHandler) Summary(c *gin.Context) {
	s, err := h.App.Summary(c.Request.Context(), namespace(c))
	if err != nil {
		fail(c, err, "failed to compute summary")
		return
	}
	util.Success(c, util.Response{"summary": s})
}
