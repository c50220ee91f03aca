package router

import (
	"net/http"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/config"
	"github.com/abu1020/tea-notes-premium/internal/export"
	"github.com/abu1020/tea-notes-premium/internal/handler"
	"github.com/abu1020/tea-notes-premium/internal/middleware"
	"github.com/abu1020/tea-notes-premium/internal/sheet"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps are the services the routes are served from. Sheet may be nil, which
// leaves /exec unregistered.
type Deps struct {
	DB     *gorm.DB
	App    *app.Controller
	Sheet  *sheet.Handler
	Format *export.Formatter
	Log    zerolog.Logger
}

// SetupRouter configures the Gin engine and every API route.
func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Log))
	r.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if d.Sheet != nil {
		r.POST("/exec", handler.NewExecHandler(d.Sheet).Exec)
	}

	api := r.Group("/api")

	protected := api.Group("")
	if cfg.Auth.Enabled {
		authHandler := handler.NewAuthHandler(d.DB, cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpireHours, cfg.Auth.BcryptCost)
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret, d.DB))
		protected.GET("/me", handler.GetMe)
		protected.POST("/profile/password", handler.ChangePassword(d.DB, cfg.Auth.BcryptCost))
	} else {
		protected.Use(middleware.SharedNamespace())
	}

	tx := handler.NewTransactionHandler(d.App)
	protected.GET("/transactions", tx.List)
	protected.POST("/transactions", tx.Create)
	protected.DELETE("/transactions", tx.Clear)
	protected.POST("/transactions/bulk-delete", tx.BulkDelete)
	protected.POST("/transactions/bulk-category", tx.BulkCategory)
	protected.PUT("/transactions/:id", tx.Update)
	protected.DELETE("/transactions/:id", tx.Delete)
	protected.GET("/summary", tx.Summary)

	settings := handler.NewSettingsHandler(d.App)
	protected.GET("/settings", settings.Get)
	protected.PUT("/settings", settings.Update)

	syncHandler := handler.NewSyncHandler(d.App)
	protected.GET("/sync/status", syncHandler.Status)
	protected.POST("/sync/fetch", syncHandler.Fetch)

	backupHandler := handler.NewBackupHandler(d.App)
	protected.GET("/backup", backupHandler.Download)
	protected.POST("/restore", backupHandler.Restore)
	protected.POST("/backups", backupHandler.Create)
	protected.GET("/backups", backupHandler.List)
	protected.GET("/backups/:id/download", backupHandler.DownloadFile)
	protected.POST("/backups/:id/restore", backupHandler.RestoreFile)
	protected.DELETE("/backups/:id", backupHandler.Delete)

	exportHandler := handler.NewExportHandler(d.App, d.Format)
	protected.GET("/export/csv", exportHandler.ExportCSV)
	protected.GET("/export/xlsx", exportHandler.ExportXLSX)

	return r
}

// no configured origins means any origin, which the script-hosted and
// file:// front ends need
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}
