package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abu1020/tea-notes-premium/internal/models"
	"github.com/abu1020/tea-notes-premium/internal/store"
	"github.com/abu1020/tea-notes-premium/internal/util"
)

const (
	DefaultTheme = "matcha"
	encPrefix    = "enc:"
)

// Settings are the per-namespace preferences and sync credentials.
type Settings struct {
	Theme         string             `json:"theme"`
	IconMapping   models.IconMapping `json:"iconMapping"`
	APIKey        string             `json:"apiKey"`
	ClientID      string             `json:"clientId"`
	WebhookURL    string             `json:"webhookUrl"`
	SpreadsheetID string             `json:"spreadsheetId"`
}

// SettingsPatch changes only the non-nil fields.
type SettingsPatch struct {
	Theme         *string            `json:"theme"`
	IconMapping   models.IconMapping `json:"iconMapping"`
	APIKey        *string            `json:"apiKey"`
	ClientID      *string            `json:"clientId"`
	WebhookURL    *string            `json:"webhookUrl"`
	SpreadsheetID *string            `json:"spreadsheetId"`
}

// Settings returns the stored settings, filling gaps from the built-in theme,
// icon set and configured sync defaults.
func (c *Controller) Settings(ctx context.Context, ns string) (Settings, error) {
	s := Settings{
		Theme:         DefaultTheme,
		IconMapping:   models.DefaultIconMapping(),
		APIKey:        c.syncDefaults.APIKey,
		WebhookURL:    c.syncDefaults.WebhookURL,
		SpreadsheetID: c.syncDefaults.SpreadsheetID,
	}

	if v, ok, err := c.getRaw(ctx, store.KeyTheme, ns); err != nil {
		return s, err
	} else if ok && v != "" {
		s.Theme = v
	}

	if v, ok, err := c.getRaw(ctx, store.KeyIcons, ns); err != nil {
		return s, err
	} else if ok {
		var icons models.IconMapping
		if err := json.Unmarshal([]byte(v), &icons); err != nil {
			c.log.Warn().Err(err).Str("namespace", ns).Msg("stored icon mapping unreadable, using defaults")
		} else {
			for k, icon := range icons {
				s.IconMapping[k] = icon
			}
		}
	}

	for _, f := range []struct {
		key string
		dst *string
	}{
		{store.KeyAPIKey, &s.APIKey},
		{store.KeyClientID, &s.ClientID},
		{store.KeyWebhookURL, &s.WebhookURL},
		{store.KeySpreadsheetID, &s.SpreadsheetID},
	} {
		v, ok, err := c.getSecret(ctx, f.key, ns)
		if err != nil {
			return s, err
		}
		if ok {
			*f.dst = v
		}
	}
	return s, nil
}

// UpdateSettings applies p and returns the result.
func (c *Controller) UpdateSettings(ctx context.Context, ns string, p SettingsPatch) (Settings, error) {
	if p.Theme != nil {
		if err := c.setRaw(ctx, store.KeyTheme, ns, strings.TrimSpace(*p.Theme)); err != nil {
			return Settings{}, err
		}
	}
	if p.IconMapping != nil {
		for t := range p.IconMapping {
			if !t.Valid() {
				return Settings{}, fmt.Errorf("%w: unknown icon category %q", ErrInvalidSettings, t)
			}
		}
		cur, err := c.Settings(ctx, ns)
		if err != nil {
			return Settings{}, err
		}
		for t, icon := range p.IconMapping {
			cur.IconMapping[t] = icon
		}
		if err := c.saveIcons(ctx, ns, cur.IconMapping); err != nil {
			return Settings{}, err
		}
	}
	if p.WebhookURL != nil {
		if u := strings.TrimSpace(*p.WebhookURL); u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return Settings{}, fmt.Errorf("%w: webhook url must be http(s)", ErrInvalidSettings)
		}
	}
	for _, f := range []struct {
		key string
		v   *string
	}{
		{store.KeyAPIKey, p.APIKey},
		{store.KeyClientID, p.ClientID},
		{store.KeyWebhookURL, p.WebhookURL},
		{store.KeySpreadsheetID, p.SpreadsheetID},
	} {
		if f.v == nil {
			continue
		}
		if err := c.setSecret(ctx, f.key, ns, strings.TrimSpace(*f.v)); err != nil {
			return Settings{}, err
		}
	}

	s, err := c.Settings(ctx, ns)
	if err != nil {
		return s, err
	}
	c.refreshStatus(ns, s)
	return s, nil
}

func (c *Controller) saveIcons(ctx context.Context, ns string, icons models.IconMapping) error {
	b, err := json.Marshal(icons)
	if err != nil {
		return fmt.Errorf("encode icons: %w", err)
	}
	return c.setRaw(ctx, store.KeyIcons, ns, string(b))
}

func (c *Controller) getRaw(ctx context.Context, base, ns string) (string, bool, error) {
	v, err := c.store.Get(ctx, store.Key(base, ns))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", base, err)
	}
	return v, true, nil
}

// setRaw stores v; an empty value removes the key.
func (c *Controller) setRaw(ctx context.Context, base, ns, v string) error {
	key := store.Key(base, ns)
	var err error
	if v == "" {
		err = c.store.Delete(ctx, key)
	} else {
		err = c.store.Set(ctx, key, v)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", base, err)
	}
	return nil
}

func (c *Controller) getSecret(ctx context.Context, base, ns string) (string, bool, error) {
	v, ok, err := c.getRaw(ctx, base, ns)
	if err != nil || !ok {
		return "", ok, err
	}
	if !strings.HasPrefix(v, encPrefix) {
		return v, true, nil
	}
	if c.encryptionKey == "" {
		c.log.Warn().Str("key", base).Msg("encrypted credential but no encryption key configured")
		return "", false, nil
	}
	plain, err := util.DecryptString(c.encryptionKey, strings.TrimPrefix(v, encPrefix))
	if err != nil {
		c.log.Warn().Err(err).Str("key", base).Msg("credential could not be decrypted, ignoring")
		return "", false, nil
	}
	return plain, true, nil
}

// setSecret stores a credential, AES encrypted when a key is configured.
func (c *Controller) setSecret(ctx context.Context, base, ns, v string) error {
	if v != "" && c.encryptionKey != "" {
		enc, err := util.EncryptString(c.encryptionKey, v)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", base, err)
		}
		v = encPrefix + enc
	}
	return c.setRaw(ctx, base, ns, v)
}
