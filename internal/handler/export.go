package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/export"

	"github.com/gin-gonic/gin"
)

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler renders the (optionally filtered) collection as CSV or XLSX.
type ExportHandler struct {
	App    *app.Controller
	Format *export.Formatter
	Now    func() time.Time
}

func NewExportHandler(a *app.Controller, f *export.Formatter) *ExportHandler {
	return &ExportHandler{App: a, Format: f, Now: time.Now}
}

// ExportCSV GET /api/export/csv?q=
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	txs, err := h.App.List(c.Request.Context(), namespace(c), c.Query("q"))
	if err != nil {
		fail(c, err, "failed to load transactions")
		return
	}
	var buf bytes.Buffer
	if err := h.Format.WriteCSV(&buf, txs); err != nil {
		fail(c, err, "failed to write csv")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.CSVFileName(h.Now())))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportXLSX GET /api/export/xlsx?q=
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	txs, err := h.App.List(c.Request.Context(), namespace(c), c.Query("q"))
	if err != nil {
		fail(c, err, "failed to load transactions")
		return
	}
	var buf bytes.Buffer
	if err := h.Format.WriteXLSX(&buf, txs); err != nil {
		fail(c, err, "failed to write xlsx")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.XLSXFileName(h.Now())))
	c.Data(http.StatusOK, xlsxMime, buf.Bytes())
}
