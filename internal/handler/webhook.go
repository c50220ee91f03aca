package handler

import (
	"io"
	"net/http"

	"github.com/abu1020/tea-notes-premium/internal/sheet"
	"github.com/abu1020/tea-notes-premium/internal/webhook"

	"github.com/gin-gonic/gin"
)

const maxActionSize = 5 << 20

// ExecHandler is the spreadsheet action endpoint. Like a script web app it
// always answers 200 and reports failures in the body.
type ExecHandler struct {
	Sheet *sheet.Handler
}

func NewExecHandler(s *sheet.Handler) *ExecHandler {
	return &ExecHandler{Sheet: s}
}

// Exec POST /exec
func (h *ExecHandler) Exec(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxActionSize))
	if err != nil {
		c.JSON(http.StatusOK, webhook.Failure("could not read request body"))
		return
	}
	c.JSON(http.StatusOK, h.Sheet.HandleJSON(c.Request.Context(), body))
}
