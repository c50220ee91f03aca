package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/backup"
	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/gin-gonic/gin"
)

const maxBackupSize = 10 << 20

// BackupHandler serves JSON backup download/upload and server-side backup files.
type BackupHandler struct {
	App *app.Controller
	Now func() time.Time
}

func NewBackupHandler(a *app.Controller) *BackupHandler {
	return &BackupHandler{App: a, Now: time.Now}
}

// Download GET /api/backup
func (h *BackupHandler) Download(c *gin.Context) {
	d, err := h.App.Backup(c.Request.Context(), namespace(c))
	if err != nil {
		fail(c, err, "failed to build backup")
		return
	}
	h.sendJSON(c, &d)
}

// Restore POST /api/restore. Accepts the backup as the raw body or as a
// multipart "file" field.
func (h *BackupHandler) Restore(c *gin.Context) {
	raw, err := readUpload(c)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	d, err := backup.Parse(raw)
	if err != nil {
		fail(c, err, "failed to read backup")
		return
	}

	t, err := h.App.Restore(c.Request.Context(), namespace(c), d)
	if err != nil {
		fail(c, err, "failed to restore backup")
		return
	}
	respondSynced(c, h.App, util.Response{
		"message": "Data restored successfully",
		"count":   len(d.Transactions),
	}, t)
}

func readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBackupSize)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing backup file: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open backup file: %w", err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return raw, nil
}

// Create POST /api/backups
func (h *BackupHandler) Create(c *gin.Context) {
	rec, err := h.App.SaveBackup(c.Request.Context(), namespace(c))
	if err != nil {
		fail(c, err, "failed to create backup")
		return
	}
	util.Success(c, util.Response{"backup": backupView(rec)})
}

// List GET /api/backups
func (h *BackupHandler) List(c *gin.Context) {
	list, err := h.App.ListBackups(c.Request.Context(), namespace(c))
	if err != nil {
		fail(c, err, "failed to list backups")
		return
	}
	items := make([]gin.H, 0, len(list))
	for i := range list {
		items = append(items, backupView(&list[i]))
	}
	util.Success(c, util.Response{"backups": items})
}

// DownloadFile GET /api/backups/:id/download returns the decrypted JSON.
func (h *BackupHandler) DownloadFile(c *gin.Context) {
	id, ok := backupID(c)
	if !ok {
		return
	}
	d, err := h.App.LoadBackup(c.Request.Context(), namespace(c), id)
	if err != nil {
		fail(c, err, "failed to read backup")
		return
	}
	h.sendJSON(c, d)
}

// RestoreFile POST /api/backups/:id/restore
func (h *BackupHandler) RestoreFile(c *gin.Context) {
	id, ok := backupID(c)
	if !ok {
		return
	}
	n, t, err := h.App.RestoreBackup(c.Request.Context(), namespace(c), id)
	if err != nil {
		fail(c, err, "failed to restore backup")
		return
	}
	respondSynced(c, h.App, util.Response{
		"message": "Data restored successfully",
		"count":   n,
	}, t)
}

// Delete DELETE /api/backups/:id
func (h *BackupHandler) Delete(c *gin.Context) {
	id, ok := backupID(c)
	if !ok {
		return
	}
	if err := h.App.DeleteBackup(c.Request.Context(), namespace(c), id); err != nil {
		fail(c, err, "failed to delete backup")
		return
	}
	util.Success(c, util.Response{"deleted": true})
}

func (h *BackupHandler) sendJSON(c *gin.Context, d *backup.Data) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		fail(c, err, "failed to encode backup")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.FileName(h.Now())))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

func backupID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid backup id")
		return 0, false
	}
	return uint(id), true
}

func backupView(b *models.BackupRecord) gin.H {
	return gin.H{
		"id":         b.ID,
		"file_name":  b.FileName,
		"size":       b.Size,
		"encrypted":  b.Encrypted,
		"created_at": b.CreatedAt,
	}
}
