package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/backup"
	"github.com/abu1020/tea-notes-premium/internal/config"
	"github.com/abu1020/tea-notes-premium/internal/database"
	"github.com/abu1020/tea-notes-premium/internal/export"
	"github.com/abu1020/tea-notes-premium/internal/logger"
	"github.com/abu1020/tea-notes-premium/internal/router"
	"github.com/abu1020/tea-notes-premium/internal/sheet"
	"github.com/abu1020/tea-notes-premium/internal/sheetsync"
	"github.com/abu1020/tea-notes-premium/internal/store"
	"github.com/abu1020/tea-notes-premium/internal/util"
	"github.com/abu1020/tea-notes-premium/internal/webhook"

	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("OBU_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()

	if err := ensureDir(filepath.Dir(cfg.Database.Path)); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := ensureDir(cfg.Backup.Dir); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	db, err := database.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.Store, db)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Auth.Enabled && cfg.JWT.Secret == "" {
		secret, err := util.RandomString(48)
		if err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWT.Secret = secret
		log.Warn().Msg("jwt.secret not set, using a random secret; tokens will not survive a restart")
	}

	controller := app.New(app.Deps{
		Store:         st,
		DB:            db,
		Sender:        webhook.NewClient(cfg.Sync.Timeout),
		Fetcher:       sheetsync.NewFetcher(cfg.Sync.SheetName),
		Vault:         backup.NewVault(db, cfg.Backup.Dir, cfg.Security.EncryptionKey),
		Sync:          cfg.Sync,
		EncryptionKey: cfg.Security.EncryptionKey,
		Log:           logger.Component(log, "app"),
	})
	controller.Start(ctx)
	defer controller.Stop()

	var sheetHandler *sheet.Handler
	if cfg.Sheet.Enabled {
		if err := ensureDir(filepath.Dir(cfg.Sheet.Path)); err != nil {
			return fmt.Errorf("create sheet dir: %w", err)
		}
		wb, err := sheet.OpenWorkbook(cfg.Sheet.Path, cfg.Sheet.Name)
		if err != nil {
			return fmt.Errorf("open workbook: %w", err)
		}
		defer wb.Close()
		sheetHandler = sheet.NewHandler(wb, logger.Component(log, "sheet"))
		log.Info().Str("path", cfg.Sheet.Path).Msg("spreadsheet action handler enabled at /exec")
	}

	r := router.SetupRouter(cfg, router.Deps{
		DB:     db,
		App:    controller,
		Sheet:  sheetHandler,
		Format: export.NewFormatter(cfg.Export.Locale, cfg.Export.Currency, cfg.Export.Timezone),
		Log:    logger.Component(log, "http"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("run server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	return nil
}

// openStore picks the Local Store backend.
func openStore(ctx context.Context, cfg config.StoreConfig, db *gorm.DB) (store.Store, func(), error) {
	switch cfg.Driver {
	case "", "sqlite":
		return store.NewGormStore(db), func() {}, nil
	case "redis":
		client, err := store.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

