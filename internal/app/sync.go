package app

import (
	"context"
	"fmt"

	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/sheetsync"
)

// SyncStatus is the status payload plus recent outbox activity.
type SyncStatus struct {
	sheetsync.Status
	Recent []models.SyncIntent `json:"recent,omitempty"`
}

func (c *Controller) SyncStatus(ctx context.Context, ns string, recent int) (SyncStatus, error) {
	s, err := c.Settings(ctx, ns)
	if err != nil {
		return SyncStatus{}, err
	}
	c.refreshStatus(ns, s)
	out := SyncStatus{Status: c.status.Get(ns)}
	if c.outbox != nil && recent > 0 {
		list, err := c.outbox.Recent(ctx, ns, recent)
		if err != nil {
			return out, err
		}
		out.Recent = list
	}
	return out, nil
}

// refreshStatus moves a namespace between offline and connected when its
// credentials change. Busy or failed states are left alone.
func (c *Controller) refreshStatus(ns string, s Settings) {
	cur := c.status.Get(ns)
	configured := s.WebhookURL != "" || c.source(s).Configured()
	switch {
	case !configured && cur.State == sheetsync.StateConnected:
		c.status.Set(ns, sheetsync.StateOffline, "")
	case configured && cur.State == sheetsync.StateOffline:
		c.status.Set(ns, sheetsync.StateConnected, "")
	}
}

func (c *Controller) source(s Settings) sheetsync.Source {
	return sheetsync.Source{
		SpreadsheetID: s.SpreadsheetID,
		APIKey:        s.APIKey,
		ClientEmail:   c.syncDefaults.ClientEmail,
		PrivateKey:    c.syncDefaults.PrivateKey,
		PrivateKeyID:  c.syncDefaults.PrivateKeyID,
		TokenURI:      c.syncDefaults.TokenURI,
	}
}

// Fetch pulls every row from the spreadsheet and replaces the local
// collection with it. On failure local data is left as it was.
func (c *Controller) Fetch(ctx context.Context, ns string) ([]models.Transaction, error) {
	s, err := c.Settings(ctx, ns)
	if err != nil {
		return nil, err
	}
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return nil, err
	}

	c.status.Set(ns, sheetsync.StateConnecting, "")
	txs, err := c.fetcher.FetchAll(ctx, c.source(s))
	if err != nil {
		err = fmt.Errorf("fetch failed: %w", err)
		c.status.Fail(ns, err)
		return nil, err
	}

	c.status.Set(ns, sheetsync.StateSyncing, "")
	unlock := c.lockWriter(ns)
	err = r.Replace(ctx, txs)
	unlock()
	if err != nil {
		c.status.Fail(ns, err)
		return nil, err
	}
	c.status.Succeed(ns, "Data fetched from Google Sheet.")
	c.log.Info().Str("namespace", ns).Int("count", len(txs)).Msg("fetched transactions from sheet")
	return txs, nil
}
