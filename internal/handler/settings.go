package handler

import (
	"net/http"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	App *app.Controller
}

func NewSettingsHandler(a *app.Controller) *SettingsHandler {
	return &SettingsHandler{App: a}
}

// Get GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	s, err := h.App.Settings(c.Request.Context(), namespace(c))
	if err != nil {
		fail(c, err, "failed to load settings")
		return
	}
	util.Success(c, util.Response{"settings": s})
}

// Update PUT /api/settings. Omitted fields are left unchanged; an empty
// string resets a credential to its configured default.
func (h *SettingsHandler) Update(c *gin.Context) {
	var p app.SettingsPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
		return
	}
	s, err := h.App.UpdateSettings(c.Request.Context(), namespace(c), p)
	if err != nil {
		fail(c, err, "failed to save settings")
		return
	}
	util.Success(c, util.Response{"settings": s})
}
