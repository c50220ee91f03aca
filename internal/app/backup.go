package app

import (
	"context"
	"errors"

	"github.com/abu1020/tea-notes-premium/internal/backup"
	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/store"
	"github.com/abu1020/tea-notes-premium/internal/webhook"
)

var ErrBackupsDisabled = errors.New("server-side backups are not configured")

// Backup snapshots a namespace.
func (c *Controller) Backup(ctx context.Context, ns string) (backup.Data, error) {
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return backup.Data{}, err
	}
	s, err := c.Settings(ctx, ns)
	if err != nil {
		return backup.Data{}, err
	}
	return backup.New(r.List(), s.IconMapping, s.Theme, c.now()), nil
}

// Restore replaces transactions, icons and theme with the backup's. When sync
// is on the mirror is cleared and refilled in the same order.
func (c *Controller) Restore(ctx context.Context, ns string, d *backup.Data) (Ticket, error) {
	defer c.lockWriter(ns)()
	r, err := c.Repo(ctx, ns)
	if err != nil {
		return Ticket{}, err
	}
	if err := r.Replace(ctx, d.Transactions); err != nil {
		return Ticket{}, err
	}
	if d.Skipped > 0 {
		c.log.Warn().Str("namespace", ns).Int("skipped", d.Skipped).Msg("restore dropped unusable transactions")
	}

	icons := models.DefaultIconMapping()
	for t, icon := range d.IconMapping {
		if t.Valid() {
			icons[t] = icon
		}
	}
	if err := c.saveIcons(ctx, ns, icons); err != nil {
		return Ticket{}, err
	}
	if d.Theme != "" {
		if err := c.setRaw(ctx, store.KeyTheme, ns, d.Theme); err != nil {
			return Ticket{}, err
		}
	}

	reqs := []webhook.Request{webhook.NewClearRequest()}
	if len(d.Transactions) > 0 {
		reqs = append(reqs, webhook.NewBulkAddRequest(d.Transactions))
	}
	return c.mirror(ctx, ns, reqs...), nil
}

// SaveBackup writes a server-side backup file for the namespace.
func (c *Controller) SaveBackup(ctx context.Context, ns string) (*models.BackupRecord, error) {
	if c.vault == nil {
		return nil, ErrBackupsDisabled
	}
	d, err := c.Backup(ctx, ns)
	if err != nil {
		return nil, err
	}
	return c.vault.Create(ctx, ns, d)
}

func (c *Controller) ListBackups(ctx context.Context, ns string) ([]models.BackupRecord, error) {
	if c.vault == nil {
		return nil, ErrBackupsDisabled
	}
	return c.vault.List(ctx, ns)
}

func (c *Controller) RestoreBackup(ctx context.Context, ns string, id uint) (int, Ticket, error) {
	if c.vault == nil {
		return 0, Ticket{}, ErrBackupsDisabled
	}
	d, err := c.vault.Load(ctx, ns, id)
	if err != nil {
		return 0, Ticket{}, err
	}
	t, err := c.Restore(ctx, ns, d)
	return len(d.Transactions), t, err
}

func (c *Controller) DeleteBackup(ctx context.Context, ns string, id uint) error {
	if c.vault == nil {
		return ErrBackupsDisabled
	}
	return c.vault.Delete(ctx, ns, id)
}

// LoadBackup reads a server-side backup without applying it.
func (c *Controller) LoadBackup(ctx context.Context, ns string, id uint) (*backup.Data, error) {
	if c.vault == nil {
		return nil, ErrBackupsDisabled
	}
	return c.vault.Load(ctx, ns, id)
}
