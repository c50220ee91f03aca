package handler

import (
	"net/http"

	"github.com/abu1020/tea-notes-premium/internal/middleware"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetMe returns the logged-in user (requires AuthMiddleware).
func GetMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not logged in")
		return
	}
	view := userView(user)
	view["namespace"] = middleware.Namespace(c)
	view["created_at"] = user.CreatedAt
	util.Success(c, util.Response{"user": view})
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword POST /api/profile/password
func ChangePassword(db *gorm.DB, bcryptCost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not logged in")
			return
		}

		var req changePasswordReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
			return
		}
		if !util.CheckPassword(req.OldPassword, user.PasswordHash) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "old password is wrong")
			return
		}
		if !isStrongPassword(req.NewPassword) {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "password must be 8-32 characters with upper case, lower case and digits")
			return
		}

		hash, err := util.HashPassword(req.NewPassword, bcryptCost)
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to hash password")
			return
		}
		if err := db.Model(user).Update("password_hash", hash).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to update password")
			return
		}

		util.Success(c, util.Response{"message": "password changed, please log in again"})
	}
}
