package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/backup"
	"github.com/abu1020/tea-notes-premium/internal/config"
	"github.com/abu1020/tea-notes-premium/internal/database"
	"github.com/abu1020/tea-notes-premium/internal/ledger"
	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/sheet"
	"github.com/abu1020/tea-notes-premium/internal/sheetsync"
	"github.com/abu1020/tea-notes-premium/internal/store"
	"github.com/abu1020/tea-notes-premium/internal/webhook"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var clock = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

type env struct {
	c     *Controller
	st    store.Store
	db    *gorm.DB
	wb    *sheet.Workbook
	hook  *httptest.Server
	sheet *sheet.Handler
}

// newEnv wires a controller whose webhook is the spreadsheet handler itself.
func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "app.db")})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	wb, err := sheet.OpenWorkbook("", "Transactions")
	require.NoError(t, err)
	h := sheet.NewHandler(wb, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.HandleJSON(r.Context(), body))
	}))
	t.Cleanup(srv.Close)

	st := store.NewMemoryStore()
	c := New(Deps{
		Store:  st,
		DB:     db,
		Sender: webhook.NewClient(5 * time.Second),
		Vault:  backup.NewVault(db, filepath.Join(t.TempDir(), "backups"), "k"),
		Sync:   config.SyncConfig{SheetName: "Transactions"},
		Log:    zerolog.Nop(),
		Clock:  clock,
	})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	t.Cleanup(func() {
		c.Stop()
		cancel()
	})
	return &env{c: c, st: st, db: db, wb: wb, hook: srv, sheet: h}
}

func (e *env) enableSync(t *testing.T, ns string) {
	t.Helper()
	url := e.hook.URL
	_, err := e.c.UpdateSettings(context.Background(), ns, SettingsPatch{WebhookURL: &url})
	require.NoError(t, err)
}

func (e *env) sheetIDs(t *testing.T) []string {
	t.Helper()
	rows, err := e.wb.Rows()
	require.NoError(t, err)
	out := []string{}
	for _, r := range rows[1:] {
		out = append(out, r[0])
	}
	return out
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestController_LocalOnly(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)

	added, ticket, err := e.c.Add(ctx, "", []ledger.Draft{{Type: models.TypeTea, Quantity: 2, Price: 10, User: "Alice"}})
	require.NoError(t, err)
	assert.True(t, ticket.Empty(), "no webhook configured")
	assert.Equal(t, float64(20), added[0].Amount)

	list, err := e.c.List(ctx, "", "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	st, err := e.c.SyncStatus(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, sheetsync.StateOffline, st.State)
	assert.Empty(t, e.sheetIDs(t))
}

func TestController_MirrorsEveryMutation(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)
	e.enableSync(t, "")

	added, ticket, err := e.c.Add(ctx, "", []ledger.Draft{
		{Type: models.TypeTea, Quantity: 1, Price: 10, User: "a"},
		{Type: models.TypeTea, Quantity: 1, Price: 10, User: "b"},
		{Type: models.TypeSnacks, Quantity: 1, Price: 10, User: "c"},
	})
	require.NoError(t, err)
	require.Len(t, ticket.Seqs, 1)
	require.NoError(t, e.c.WaitSync(ctx, ticket))
	assert.Len(t, e.sheetIDs(t), 3)

	n, ticket, err := e.c.BulkSetCategory(ctx, "", []int64{added[0].ID, added[1].ID}, models.TypeCoffee)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, e.c.WaitSync(ctx, ticket))

	rows, err := e.wb.Rows()
	require.NoError(t, err)
	assert.Equal(t, "coffee", rows[1][1])
	assert.Equal(t, "coffee", rows[2][1])
	assert.Equal(t, "snacks", rows[3][1])

	found, ticket, err := e.c.Delete(ctx, "", added[2].ID)
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, e.c.WaitSync(ctx, ticket))
	assert.Len(t, e.sheetIDs(t), 2)

	updated, ticket, err := e.c.Update(ctx, "", added[0].ID, ledger.Draft{Type: models.TypeTea, Quantity: 3, Price: 5, User: "a"})
	require.NoError(t, err)
	assert.Equal(t, float64(15), updated.Amount)
	require.Len(t, ticket.Seqs, 2)
	require.NoError(t, e.c.WaitSync(ctx, ticket))
	assert.Len(t, e.sheetIDs(t), 2)

	ticket, err = e.c.Clear(ctx, "")
	require.NoError(t, err)
	require.NoError(t, e.c.WaitSync(ctx, ticket))
	assert.Empty(t, e.sheetIDs(t))

	st, err := e.c.SyncStatus(ctx, "", 20)
	require.NoError(t, err)
	assert.Equal(t, sheetsync.StateConnected, st.State)
	assert.Equal(t, "Cleared", st.Message)
	assert.NotEmpty(t, st.Recent)
}

func TestController_RemoteFailureKeepsLocal(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()
	bad := failing.URL
	_, err := e.c.UpdateSettings(ctx, "", SettingsPatch{WebhookURL: &bad})
	require.NoError(t, err)

	_, ticket, err := e.c.Add(ctx, "", []ledger.Draft{{Type: models.TypeTea, Quantity: 1, Price: 1, User: "a"}})
	require.NoError(t, err)
	err = e.c.WaitSync(ctx, ticket)
	assert.ErrorIs(t, err, sheetsync.ErrDeliveryFailed)

	list, err := e.c.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, list, 1, "local mutation is not rolled back")

	st, err := e.c.SyncStatus(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, sheetsync.StateError, st.State)
	assert.Contains(t, st.LastError, "500")
}

// An add whose intent is still being queued must not be overtaken by a clear:
// the mirror would receive clear then add and keep a row the ledger no longer has.
func TestController_ConcurrentAddAndClearKeepCommitOrder(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)
	e.enableSync(t, "")

	held := make(chan struct{})
	release := make(chan struct{})
	var hold, unhold sync.Once
	letGo := func() { unhold.Do(func() { close(release) }) }
	t.Cleanup(letGo)
	require.NoError(t, e.db.Callback().Create().Before("gorm:begin_transaction").Register("test:hold_add_intent", func(tx *gorm.DB) {
		it, ok := tx.Statement.Dest.(*models.SyncIntent)
		if !ok || it.Action != string(webhook.ActionAdd) {
			return
		}
		hold.Do(func() {
			close(held)
			<-release
		})
	}))

	type result struct {
		ticket Ticket
		err    error
	}
	addDone := make(chan result, 1)
	go func() {
		_, tk, err := e.c.Add(ctx, "", []ledger.Draft{{Type: models.TypeTea, Quantity: 1, Price: 10, User: "a"}})
		addDone <- result{tk, err}
	}()
	select {
	case <-held:
	case <-ctx.Done():
		t.Fatal("add never queued its intent")
	}

	clearDone := make(chan result, 1)
	go func() {
		tk, err := e.c.Clear(ctx, "")
		clearDone <- result{tk, err}
	}()
	select {
	case <-clearDone:
		letGo()
		t.Fatal("clear completed while the add was still queueing")
	case <-time.After(100 * time.Millisecond):
	}
	letGo()

	add := <-addDone
	clr := <-clearDone
	require.NoError(t, add.err)
	require.NoError(t, clr.err)
	require.Len(t, add.ticket.Seqs, 1)
	require.Len(t, clr.ticket.Seqs, 1)
	assert.Less(t, add.ticket.Seqs[0], clr.ticket.Seqs[0])

	require.NoError(t, e.c.WaitSync(ctx, add.ticket))
	require.NoError(t, e.c.WaitSync(ctx, clr.ticket))

	list, err := e.c.List(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, e.sheetIDs(t), "mirror matches the ledger")
}

func TestController_DeleteUnknownIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)
	e.enableSync(t, "")

	found, ticket, err := e.c.Delete(ctx, "", 5)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, ticket.Empty())

	_, _, err = e.c.Update(ctx, "", 5, ledger.Draft{Type: models.TypeTea, Quantity: 1, Price: 1, User: "x"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestController_Namespaces(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)

	_, _, err := e.c.Add(ctx, "alice", []ledger.Draft{{Type: models.TypeTea, Quantity: 1, Price: 1, User: "alice"}})
	require.NoError(t, err)

	shared, err := e.c.List(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, shared)

	mine, err := e.c.List(ctx, "alice", "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestController_BackupRestoreRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)

	_, _, err := e.c.Add(ctx, "", []ledger.Draft{
		{Type: models.TypeTea, Quantity: 2, Price: 10, User: "Alice", Note: "chai"},
		{Type: models.TypePayment, Price: 100, User: "Bob"},
	})
	require.NoError(t, err)
	theme := "ocean"
	_, err = e.c.UpdateSettings(ctx, "", SettingsPatch{Theme: &theme, IconMapping: models.IconMapping{models.TypeTea: "fa-leaf"}})
	require.NoError(t, err)

	before, err := e.c.List(ctx, "", "")
	require.NoError(t, err)
	snap, err := e.c.Backup(ctx, "")
	require.NoError(t, err)

	_, err = e.c.Clear(ctx, "")
	require.NoError(t, err)
	other := "dark"
	_, err = e.c.UpdateSettings(ctx, "", SettingsPatch{Theme: &other})
	require.NoError(t, err)

	_, err = e.c.Restore(ctx, "", &snap)
	require.NoError(t, err)

	after, err := e.c.List(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	s, err := e.c.Settings(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "ocean", s.Theme)
	assert.Equal(t, "fa-leaf", s.IconMapping[models.TypeTea])
	assert.Equal(t, "fa-wallet", s.IconMapping[models.TypePayment])
}

func TestController_ServerBackups(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)

	_, _, err := e.c.Add(ctx, "bob", []ledger.Draft{{Type: models.TypeCoffee, Quantity: 1, Price: 12, User: "bob"}})
	require.NoError(t, err)

	rec, err := e.c.SaveBackup(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, rec.Encrypted)

	_, err = e.c.Clear(ctx, "bob")
	require.NoError(t, err)

	n, _, err := e.c.RestoreBackup(ctx, "bob", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := e.c.List(ctx, "bob", "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	backups, err := e.c.ListBackups(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
	require.NoError(t, e.c.DeleteBackup(ctx, "bob", rec.ID))
}

type fakeReader struct{ values [][]interface{} }

func (f fakeReader) ReadValues(context.Context, string, string) ([][]interface{}, error) {
	return f.values, nil
}

func TestController_Fetch(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx(t)

	_, _, err := e.c.Add(ctx, "", []ledger.Draft{{Type: models.TypeTea, Quantity: 1, Price: 1, User: "local"}})
	require.NoError(t, err)

	// no credentials: error and local data untouched
	_, err = e.c.Fetch(ctx, "")
	require.Error(t, err)
	list, _ := e.c.List(ctx, "", "")
	assert.Len(t, list, 1)
	st, _ := e.c.SyncStatus(ctx, "", 0)
	assert.Equal(t, sheetsync.StateError, st.State)

	e.c.fetcher.Dial = func(context.Context, sheetsync.Source) (sheetsync.Reader, error) {
		return fakeReader{values: [][]interface{}{
			{"ID", "Type", "Amount", "Note", "Date", "User", "Quantity", "Price"},
			{"2", "coffee", "30", "", "2024-05-01T00:00:00.000Z", "remote", "2", "15"},
			{"1", "tea", "10", "", "2024-04-30T00:00:00.000Z", "remote", "1", "10"},
		}}, nil
	}
	key, sheetID := "api-key", "sheet-1"
	_, err = e.c.UpdateSettings(ctx, "", SettingsPatch{APIKey: &key, SpreadsheetID: &sheetID})
	require.NoError(t, err)

	txs, err := e.c.Fetch(ctx, "")
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	list, _ = e.c.List(ctx, "", "")
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)
	st, _ = e.c.SyncStatus(ctx, "", 0)
	assert.Equal(t, sheetsync.StateConnected, st.State)
}

func TestSettings_EncryptedCredentials(t *testing.T) {
	st := store.NewMemoryStore()
	c := New(Deps{Store: st, EncryptionKey: "secret", Log: zerolog.Nop()})
	ctx := context.Background()

	url := "https://script.google.com/macros/s/abc/exec"
	s, err := c.UpdateSettings(ctx, "", SettingsPatch{WebhookURL: &url})
	require.NoError(t, err)
	assert.Equal(t, url, s.WebhookURL)

	raw, err := st.Get(ctx, store.KeyWebhookURL)
	require.NoError(t, err)
	assert.NotContains(t, raw, "script.google.com")

	bad := "ftp://x"
	_, err = c.UpdateSettings(ctx, "", SettingsPatch{WebhookURL: &bad})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = c.UpdateSettings(ctx, "", SettingsPatch{IconMapping: models.IconMapping{"juice": "x"}})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	// clearing falls back to the configured default
	empty := ""
	s, err = c.UpdateSettings(ctx, "", SettingsPatch{WebhookURL: &empty})
	require.NoError(t, err)
	assert.Empty(t, s.WebhookURL)
}

func TestSettings_Defaults(t *testing.T) {
	c := New(Deps{Store: store.NewMemoryStore(), Sync: config.SyncConfig{WebhookURL: "https://hook"}, Log: zerolog.Nop()})
	s, err := c.Settings(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTheme, s.Theme)
	assert.Equal(t, models.DefaultIconMapping(), s.IconMapping)
	assert.Equal(t, "https://hook", s.WebhookURL)
}
