// Package app holds the application state: one transaction repository per
// namespace, the settings store and the remote sync machinery. HTTP handlers
// talk to the Controller only.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abu1020/tea-notes-premium/internal/backup"
	"github.com/abu1020/tea-notes-premium/internal/config"
	"github.com/abu1020/tea-notes-premium/internal/ledger"
	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/sheetsync"
	"github.com/abu1020/tea-notes-premium/internal/store"
	"github.com/abu1020/tea-notes-premium/internal/webhook"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Deps wires a Controller. DB and Sender may be nil, which turns the outbox off.
type Deps struct {
	Store         store.Store
	DB            *gorm.DB
	Sender        sheetsync.Sender
	Fetcher       *sheetsync.Fetcher
	Vault         *backup.Vault
	Sync          config.SyncConfig
	EncryptionKey string
	Log           zerolog.Logger
	Clock         func() time.Time
}

type Controller struct {
	store         store.Store
	outbox        *sheetsync.Outbox
	fetcher       *sheetsync.Fetcher
	vault         *backup.Vault
	status        *sheetsync.Tracker
	syncDefaults  config.SyncConfig
	encryptionKey string
	log           zerolog.Logger
	now           func() time.Time

	mu      sync.Mutex
	repos   map[string]*ledger.Repository
	writers map[string]*sync.Mutex
}

func New(d Deps) *Controller {
	c := &Controller{
		store:         d.Store,
		fetcher:       d.Fetcher,
		vault:         d.Vault,
		status:        sheetsync.NewTracker(),
		syncDefaults:  d.Sync,
		encryptionKey: d.EncryptionKey,
		log:           d.Log,
		now:           d.Clock,
		repos:         make(map[string]*ledger.Repository),
		writers:       make(map[string]*sync.Mutex),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.fetcher == nil {
		c.fetcher = sheetsync.NewFetcher(d.Sync.SheetName)
	}
	if d.DB != nil && d.Sender != nil {
		retry := sheetsync.DefaultRetryConfig()
		retry.MaxRetries = d.Sync.MaxRetries
		if d.Sync.BaseDelay > 0 {
			retry.BaseDelay = d.Sync.BaseDelay
		}
		c.outbox = sheetsync.NewOutbox(d.DB, d.Sender, c.webhookURL, c.status, retry, d.Log.With().Str("component", "outbox").Logger())
	}
	return c
}

// Start launches background sync delivery.
func (c *Controller) Start(ctx context.Context) {
	if c.outbox != nil {
		c.outbox.Start(ctx)
	}
}

func (c *Controller) Stop() {
	if c.outbox != nil {
		c.outbox.Stop()
	}
}

// Repo returns the repository of a namespace, loading it on first use.
func (c *Controller) Repo(ctx context.Context, ns string) (*ledger.Repository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.repos[ns]; ok {
		return r, nil
	}
	r, err := ledger.Open(ctx, c.store, ns,
		ledger.WithClock(c.now),
		ledger.WithLogger(c.log.With().Str("namespace", ns).Logger()))
	if err != nil {
		return nil, err
	}
	c.repos[ns] = r
	return r, nil
}

// lockWriter serializes mutations of one namespace from the local commit
// through the outbox enqueue, so intent seqs follow commit order.
func (c *Controller) lockWriter(ns string) (unlock func()) {
	c.mu.Lock()
	w, ok := c.writers[ns]
	if !ok {
		w = &sync.Mutex{}
		c.writers[ns] = w
	}
	c.mu.Unlock()
	w.Lock()
	return w.Unlock
}

// Ticket identifies the sync intents a mutation produced. Empty when remote
// sync is off for the namespace.
type Ticket struct {
	Seqs []uint64 `json:"seqs,omitempty"`
}

func (t Ticket) Empty() bool { return len(t.Seqs) == 0 }

// List returns the transactions matching q, newest first.
func (c *Controller) List(ctx context.Context, ns, q string) ([]models.Transaction, error) {
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return nil, err
	}
	return r.Search(q), nil
}

func (c *Controller) Summary(ctx context.Context, ns string) (ledger.Summary, error) {
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return ledger.Summary{}, err
	}
	return r.Summary(), nil
}

// Add records drafts. One draft is mirrored as "add", several as "bulk_add".
func (c *Controller) Add(ctx context.Context, ns string, drafts []ledger.Draft) ([]models.Transaction, Ticket, error) {
	defer c.lockWriter(ns)()
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return nil, Ticket{}, err
	}
	added, err := r.AddBulk(ctx, drafts)
	if err != nil {
		return nil, Ticket{}, err
	}
	if len(added) == 1 {
		return added, c.mirror(ctx, ns, webhook.NewAddRequest(added[0])), nil
	}
	return added, c.mirror(ctx, ns, webhook.NewBulkAddRequest(added)), nil
}

// Update replaces a transaction. The webhook protocol has no update action,
// so the mirror gets a delete of the old row followed by an add.
func (c *Controller) Update(ctx context.Context, ns string, id int64, d ledger.Draft) (models.Transaction, Ticket, error) {
	defer c.lockWriter(ns)()
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return models.Transaction{}, Ticket{}, err
	}
	old, _ := r.Get(id)
	tx, found, err := r.Update(ctx, id, d)
	if err != nil {
		return models.Transaction{}, Ticket{}, err
	}
	if !found {
		return models.Transaction{}, Ticket{}, ledger.ErrNotFound
	}
	return tx, c.mirror(ctx, ns, webhook.NewDeleteRequest(old), webhook.NewAddRequest(tx)), nil
}

// Delete removes a transaction. Unknown ids are a no-op and report found=false.
func (c *Controller) Delete(ctx context.Context, ns string, id int64) (bool, Ticket, error) {
	defer c.lockWriter(ns)()
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return false, Ticket{}, err
	}
	removed, found, err := r.Delete(ctx, id)
	if err != nil || !found {
		return found, Ticket{}, err
	}
	return true, c.mirror(ctx, ns, webhook.NewDeleteRequest(removed)), nil
}

func (c *Controller) DeleteBulk(ctx context.Context, ns string, ids []int64) (int, Ticket, error) {
	defer c.lockWriter(ns)()
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return 0, Ticket{}, err
	}
	n, err := r.DeleteBulk(ctx, ids)
	if err != nil {
		return 0, Ticket{}, err
	}
	return n, c.mirror(ctx, ns, webhook.NewBulkDeleteRequest(ids)), nil
}

func (c *Controller) BulkSetCategory(ctx context.Context, ns string, ids []int64, t models.TransactionType) (int, Ticket, error) {
	defer c.lockWriter(ns)()
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return 0, Ticket{}, err
	}
	n, err := r.BulkSetCategory(ctx, ids, t)
	if err != nil {
		return 0, Ticket{}, err
	}
	return n, c.mirror(ctx, ns, webhook.NewBulkUpdateRequest(ids, t)), nil
}

func (c *Controller) Clear(ctx context.Context, ns string) (Ticket, error) {
	defer c.lockWriter(ns)()
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return Ticket{}, err
	}
	if err := r.Clear(ctx); err != nil {
		return Ticket{}, err
	}
	return c.mirror(ctx, ns, webhook.NewClearRequest()), nil
}

// mirror queues reqs for remote delivery when a webhook is configured. The
// local change is already committed; a queueing failure only shows up in the
// sync status.
func (c *Controller) mirror(ctx context.Context, ns string, reqs ...webhook.Request) Ticket {
	if c.outbox == nil {
		return Ticket{}
	}
	url, err := c.webhookURL(ctx, ns)
	if err != nil {
		c.status.Fail(ns, err)
		return Ticket{}
	}
	if url == "" {
		return Ticket{}
	}

	var t Ticket
	for _, req := range reqs {
		seq, err := c.outbox.Enqueue(ctx, ns, req)
		if err != nil {
			c.log.Error().Err(err).Str("namespace", ns).Str("action", string(req.Action)).Msg("queue sync intent")
			c.status.Fail(ns, fmt.Errorf("sync failed: %w", err))
			return t
		}
		t.Seqs = append(t.Seqs, seq)
	}
	return t
}

// WaitSync blocks until every intent of t is settled and returns the first
// delivery error.
func (c *Controller) WaitSync(ctx context.Context, t Ticket) error {
	if c.outbox == nil {
		return nil
	}
	var first error
	for _, seq := range t.Seqs {
		if _, err := c.outbox.Wait(ctx, seq); err != nil && first == nil {
			first = err
			if ctx.Err() != nil {
				return err
			}
		}
	}
	return first
}

func (c *Controller) webhookURL(ctx context.Context, ns string) (string, error) {
	s, err := c.Settings(ctx, ns)
	if err != nil {
		return "", err
	}
	return s.WebhookURL, nil
}
