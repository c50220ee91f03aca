package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/sheetsync"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/gin-gonic/gin"
)

const maxRecentIntents = 100

// SyncHandler exposes the remote mirror status and the full read-sync.
type SyncHandler struct {
	App *app.Controller
}

func NewSyncHandler(a *app.Controller) *SyncHandler {
	return &SyncHandler{App: a}
}

// Status GET /api/sync/status?recent=10
func (h *SyncHandler) Status(c *gin.Context) {
	recent, err := strconv.Atoi(c.DefaultQuery("recent", "10"))
	if err != nil || recent < 0 {
		recent = 10
	}
	if recent > maxRecentIntents {
		recent = maxRecentIntents
	}

	st, err := h.App.SyncStatus(c.Request.Context(), namespace(c), recent)
	if err != nil {
		fail(c, err, "failed to load sync status")
		return
	}
	util.Success(c, util.Response{"status": st})
}

// Fetch POST /api/sync/fetch replaces local data with the spreadsheet rows.
func (h *SyncHandler) Fetch(c *gin.Context) {
	txs, err := h.App.Fetch(c.Request.Context(), namespace(c))
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, sheetsync.ErrNoCredentials) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		util.Error(c, http.StatusBadGateway, util.CodeSyncErr, err.Error())
		return
	}
	util.Success(c, util.Response{
		"message": "Data fetched from Google Sheet.",
		"count":   len(txs),
	})
}
