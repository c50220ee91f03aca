package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/app"
	"github.com/abu1020/tea-notes-premium/internal/export"
	"github.com/abu1020/tea-notes-premium/internal/middleware"
	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/sheet"
	"github.com/abu1020/tea-notes-premium/internal/store"
	"github.com/abu1020/tea-notes-premium/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// newEngine wires every handler over a memory store with remote sync off.
func newEngine(t *testing.T) (*gin.Engine, *app.Controller) {
	t.Helper()
	ctrl := app.New(app.Deps{
		Store: store.NewMemoryStore(),
		Log:   zerolog.Nop(),
		Clock: func() time.Time { return fixedNow },
	})

	r := gin.New()
	api := r.Group("/api", middleware.SharedNamespace())

	tx := NewTransactionHandler(ctrl)
	api.GET("/transactions", tx.List)
	api.POST("/transactions", tx.Create)
	api.DELETE("/transactions", tx.Clear)
	api.POST("/transactions/bulk-delete", tx.BulkDelete)
	api.POST("/transactions/bulk-category", tx.BulkCategory)
	api.PUT("/transactions/:id", tx.Update)
	api.DELETE("/transactions/:id", tx.Delete)
	api.GET("/summary", tx.Summary)

	s := NewSettingsHandler(ctrl)
	api.GET("/settings", s.Get)
	api.PUT("/settings", s.Update)

	sy := NewSyncHandler(ctrl)
	api.GET("/sync/status", sy.Status)
	api.POST("/sync/fetch", sy.Fetch)

	b := NewBackupHandler(ctrl)
	b.Now = func() time.Time { return fixedNow }
	api.GET("/backup", b.Download)
	api.POST("/restore", b.Restore)
	api.GET("/backups", b.List)

	e := NewExportHandler(ctrl, export.NewFormatter("en-IN", "₹", "UTC"))
	e.Now = func() time.Time { return fixedNow }
	api.GET("/export/csv", e.ExportCSV)
	api.GET("/export/xlsx", e.ExportXLSX)

	return r, ctrl
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type txList struct {
	Transactions []models.Transaction `json:"transactions"`
	Count        int                  `json:"count"`
	Sync         string               `json:"sync"`
}

func addTea(t *testing.T, r http.Handler) models.Transaction {
	t.Helper()
	w, env := do(t, r, http.MethodPost, "/api/transactions", gin.H{
		"type": "tea", "quantity": 2, "price": 10, "note": "Morning tea", "user": "Alice",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[txList](t, env.Data)
	require.Len(t, out.Transactions, 1)
	return out.Transactions[0]
}

func TestTransactionHandler_CreateSingle(t *testing.T) {
	r, _ := newEngine(t)
	tx := addTea(t, r)

	assert.Equal(t, models.TypeTea, tx.Type)
	assert.Equal(t, 20.0, tx.Amount)
	assert.Equal(t, fixedNow.UnixMilli(), tx.ID)

	w, env := do(t, r, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[txList](t, env.Data)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "Morning tea", list.Transactions[0].Note)
}

func TestTransactionHandler_CreateBulkAndSearch(t *testing.T) {
	r, _ := newEngine(t)
	w, env := do(t, r, http.MethodPost, "/api/transactions", gin.H{"items": []gin.H{
		{"type": "coffee", "quantity": 1, "price": 15.5, "user": "Bob"},
		{"type": "snacks", "quantity": 3, "price": 2, "note": "Biscuits", "user": "Carol"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[txList](t, env.Data)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "local", out.Sync)
	assert.NotEqual(t, out.Transactions[0].ID, out.Transactions[1].ID)

	_, env = do(t, r, http.MethodGet, "/api/transactions?q=biscuit", nil)
	found := decode[txList](t, env.Data)
	require.Equal(t, 1, found.Count)
	assert.Equal(t, "Carol", found.Transactions[0].User)

	_, env = do(t, r, http.MethodGet, "/api/transactions?q=15.5", nil)
	assert.Equal(t, 1, decode[txList](t, env.Data).Count)
}

func TestTransactionHandler_CreateRejectsInvalid(t *testing.T) {
	r, _ := newEngine(t)

	w, env := do(t, r, http.MethodPost, "/api/transactions", gin.H{"type": "tea", "quantity": 1, "price": 0, "user": "Alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, util.CodeInvalidParam, env.Code)
	assert.Contains(t, env.Message, "price")

	w, _ = do(t, r, http.MethodPost, "/api/transactions", gin.H{"type": "beer", "quantity": 1, "price": 3, "user": "Alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/transactions", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, env = do(t, r, http.MethodGet, "/api/transactions", nil)
	assert.Equal(t, 0, decode[txList](t, env.Data).Count)
}

func TestTransactionHandler_Update(t *testing.T) {
	r, _ := newEngine(t)
	tx := addTea(t, r)

	w, env := do(t, r, http.MethodPut, "/api/transactions/"+itoa(tx.ID), gin.H{
		"type": "payment", "quantity": 4, "price": 50, "user": "Alice",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[struct {
		Transaction models.Transaction `json:"transaction"`
	}](t, env.Data).Transaction
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, 1.0, got.Quantity)
	assert.Equal(t, 50.0, got.Amount)
	assert.Equal(t, tx.Date, got.Date)

	w, env = do(t, r, http.MethodPut, "/api/transactions/12345", gin.H{
		"type": "tea", "quantity": 1, "price": 1, "user": "Alice",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, util.CodeNotFound, env.Code)

	w, _ = do(t, r, http.MethodPut, "/api/transactions/abc", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionHandler_DeleteAndBulk(t *testing.T) {
	r, _ := newEngine(t)
	tx := addTea(t, r)

	// unknown id is a no-op
	w, env := do(t, r, http.MethodDelete, "/api/transactions/999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":false,"sync":"local"}`, string(env.Data))

	w, env = do(t, r, http.MethodDelete, "/api/transactions/"+itoa(tx.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":true,"sync":"local"}`, string(env.Data))

	a, b := addTea(t, r), addTea(t, r)
	w, env = do(t, r, http.MethodPost, "/api/transactions/bulk-category", gin.H{"ids": []int64{a.ID, b.ID}, "type": "coffee"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"updated":2,"sync":"local"}`, string(env.Data))

	w, _ = do(t, r, http.MethodPost, "/api/transactions/bulk-category", gin.H{"ids": []int64{a.ID}, "type": "beer"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/transactions/bulk-delete", gin.H{"ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, r, http.MethodPost, "/api/transactions/bulk-delete", gin.H{"ids": []int64{a.ID, b.ID, 7}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2,"sync":"local"}`, string(env.Data))
}

func TestTransactionHandler_ClearAndSummary(t *testing.T) {
	r, _ := newEngine(t)
	addTea(t, r)
	do(t, r, http.MethodPost, "/api/transactions", gin.H{"type": "payment", "price": 15, "user": "Bob"})

	w, env := do(t, r, http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[struct {
		Summary struct {
			TotalSpent float64 `json:"total_spent"`
			TotalPaid  float64 `json:"total_paid"`
			Balance    float64 `json:"balance"`
		} `json:"summary"`
	}](t, env.Data).Summary
	assert.Equal(t, 20.0, sum.TotalSpent)
	assert.Equal(t, 15.0, sum.TotalPaid)
	assert.Equal(t, 5.0, sum.Balance)

	w, _ = do(t, r, http.MethodDelete, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, env = do(t, r, http.MethodGet, "/api/transactions?q=tea", nil)
	assert.Equal(t, 0, decode[txList](t, env.Data).Count)
}

func TestSettingsHandler(t *testing.T) {
	r, _ := newEngine(t)

	w, env := do(t, r, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[struct {
		Settings app.Settings `json:"settings"`
	}](t, env.Data).Settings
	assert.Equal(t, app.DefaultTheme, s.Theme)
	assert.Equal(t, "fa-mug-hot", s.IconMapping[models.TypeTea])

	w, env = do(t, r, http.MethodPut, "/api/settings", gin.H{"theme": "ocean", "iconMapping": gin.H{"tea": "fa-leaf"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s = decode[struct {
		Settings app.Settings `json:"settings"`
	}](t, env.Data).Settings
	assert.Equal(t, "ocean", s.Theme)
	assert.Equal(t, "fa-leaf", s.IconMapping[models.TypeTea])
	assert.Equal(t, "fa-coffee", s.IconMapping[models.TypeCoffee])

	w, env = do(t, r, http.MethodPut, "/api/settings", gin.H{"webhookUrl": "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, util.CodeInvalidParam, env.Code)
}

func TestSyncHandler_OfflineAndFetchWithoutCredentials(t *testing.T) {
	r, _ := newEngine(t)

	w, env := do(t, r, http.MethodGet, "/api/sync/status?recent=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"state":"offline"`)

	w, env = do(t, r, http.MethodPost, "/api/sync/fetch", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "no sheets credentials")
}

func TestBackupHandler_DownloadAndRestore(t *testing.T) {
	r, _ := newEngine(t)
	tx := addTea(t, r)
	do(t, r, http.MethodPut, "/api/settings", gin.H{"theme": "ocean"})

	req := httptest.NewRequest(http.MethodGet, "/api/backup", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "office-bu-backup-2024-05-01.json")
	snapshot := w.Body.String()
	assert.Contains(t, snapshot, `"iconMapping"`)

	do(t, r, http.MethodDelete, "/api/transactions", nil)
	do(t, r, http.MethodPut, "/api/settings", gin.H{"theme": "rose"})

	w2, env := do(t, r, http.MethodPost, "/api/restore", snapshot)
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())
	assert.Contains(t, string(env.Data), `"count":1`)

	_, env = do(t, r, http.MethodGet, "/api/transactions", nil)
	list := decode[txList](t, env.Data)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, tx, list.Transactions[0])

	_, env = do(t, r, http.MethodGet, "/api/settings", nil)
	assert.Contains(t, string(env.Data), `"theme":"ocean"`)
}

func TestBackupHandler_RestoreMultipart(t *testing.T) {
	r, _ := newEngine(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "backup.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte(`{"version":1,"timestamp":"2024-05-01T09:30:00.000Z","transactions":[
		{"id":1,"type":"snacks","amount":6,"note":"","date":"2024-05-01T09:30:00.000Z","user":"Dan","quantity":3,"price":2}
	],"iconMapping":{},"theme":"matcha"}`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/restore", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, env := do(t, r, http.MethodGet, "/api/transactions?q=dan", nil)
	assert.Equal(t, 1, decode[txList](t, env.Data).Count)
}

func TestBackupHandler_RejectsInvalid(t *testing.T) {
	r, _ := newEngine(t)
	addTea(t, r)

	for _, body := range []string{
		`{"version":1}`,
		`{"transactions":{},"iconMapping":{}}`,
		`{"transactions":[]}`,
		`not json`,
	} {
		w, env := do(t, r, http.MethodPost, "/api/restore", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, util.CodeInvalidParam, env.Code, body)
	}

	// nothing was touched
	_, env := do(t, r, http.MethodGet, "/api/transactions", nil)
	assert.Equal(t, 1, decode[txList](t, env.Data).Count)
}

func TestBackupHandler_ServerBackupsDisabled(t *testing.T) {
	r, _ := newEngine(t)
	w, env := do(t, r, http.MethodGet, "/api/backups", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, util.CodeServerErr, env.Code)
}

func TestExportHandler(t *testing.T) {
	r, _ := newEngine(t)
	addTea(t, r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/export/csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "office-bu-export-2024-05-01.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Date,User,Type"))
	assert.Contains(t, lines[1], "Alice")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/export/xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxMime, w.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExecHandler(t *testing.T) {
	wb, err := sheet.OpenWorkbook("", "Transactions")
	require.NoError(t, err)
	h := NewExecHandler(sheet.NewHandler(wb, zerolog.Nop()))

	r := gin.New()
	r.POST("/exec", h.Exec)

	body := `{"action":"add","transaction":{"id":42,"type":"tea","amount":20,"note":"","date":"2024-05-01T09:30:00.000Z","user":"Alice","quantity":2,"price":10}}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","message":"Added","id":42}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(`{"action":"explode"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error"`)

	rows, err := wb.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
