package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/backup"
	"github.com/abu1020/tea-notes-premium/internal/ledger"
	"github.com/abu1020/tea-notes-premium/internal/middleware"
	"github.com/abu1020/tea-notes-premium/internal/sheetsync"
	"github.com/abu1020/tea-notes-premium/internal/util"
	"github.com/abu1020/tea-notes-premium/internal/webhook"

	"github.com/gin-gonic/gin"
)

// fail maps domain errors onto the response envelope. Anything unrecognised
// is a 500 carrying fallback instead of the raw error text.
func fail(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, app.ErrInvalidSettings),
		errors.Is(err, backup.ErrInvalid),
		errors.Is(err, sheetsync.ErrNoCredentials):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, backup.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, err.Error())
	case errors.Is(err, app.ErrBackupsDisabled):
		util.Error(c, http.StatusNotImplemented, util.CodeServerErr, err.Error())
	case errors.Is(err, sheetsync.ErrDeliveryFailed), errors.Is(err, webhook.ErrNotConfigured):
		util.Error(c, http.StatusBadGateway, util.CodeSyncErr, err.Error())
	default:
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, fallback)
	}
}

// respondSynced writes data, first waiting for remote delivery when the
// client passed ?wait=true. The local change stands either way.
func respondSynced(c *gin.Context, a *app.Controller, data util.Response, t app.Ticket) {
	if t.Empty() {
		data["sync"] = "local"
		util.Success(c, data)
		return
	}
	data["sync"] = "queued"
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		if err := a.WaitSync(c.Request.Context(), t); err != nil {
			_ = c.Error(err)
			util.Error(c, http.StatusBadGateway, util.CodeSyncErr, "saved locally, remote sync failed: "+err.Error())
			return
		}
		data["sync"] = "delivered"
	}
	util.Success(c, data)
}

func namespace(c *gin.Context) string {
	return middleware.Namespace(c)
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid id")
		return 0, false
	}
	return id, true
}
