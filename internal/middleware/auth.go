package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	CurrentUserKey = "currentUser"
	NamespaceKey   = "namespace"
)

// AuthMiddleware validates the JWT and puts the current user into the
// context. Each user's data lives under their own namespace (the username).
func AuthMiddleware(jwtSecret string, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "not logged in")
			c.Abort()
			return
		}

		claims, err := util.ParseToken(jwtSecret, tokenStr)
		if err != nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "session expired, please log in again")
			c.Abort()
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "user not found")
			} else {
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load user")
			}
			c.Abort()
			return
		}

		c.Set(CurrentUserKey, &user)
		c.Set(NamespaceKey, strings.ToLower(user.Username))
		c.Next()
	}
}

// SharedNamespace is used when auth is off: everyone works on the shared,
// un-suffixed collection.
func SharedNamespace() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(NamespaceKey, "")
		c.Next()
	}
}

// Namespace returns the namespace resolved by the auth middleware.
func Namespace(c *gin.Context) string {
	return c.GetString(NamespaceKey)
}

// CurrentUser returns the logged-in user, nil when auth is off.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// header first, then ?token= for downloads that cannot set headers
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}
