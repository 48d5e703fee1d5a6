package provision

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
	"gopkg.in/yaml.v3"
)

/* Loader seeds webhook configuration from webhooks.yaml at boot
 * Provides in-memory lookup for fast access; the durable store stays the
 * source of truth once the engine runs
 */

// Config represents the structure of webhooks.yaml
type Config struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig represents a single webhook in the YAML file
type WebhookConfig struct {
	ID              string `yaml:"id"`
	TenantID        string `yaml:"tenant_id"`
	URL             string `yaml:"url"`
	Secret          string `yaml:"secret"`
	Active          bool   `yaml:"active"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryIntervalMS int    `yaml:"retry_interval_ms"`
	TimeoutMS       int    `yaml:"timeout_ms"` // Default: 30000
}

// Validate checks if the webhook configuration is valid
func (c *WebhookConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if c.URL == "" {
		return fmt.Errorf("url cannot be empty for webhook %s", c.ID)
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("url must be absolute for webhook %s: %s", c.ID, c.URL)
	}
	if c.Secret == "" {
		return fmt.Errorf("secret cannot be empty for webhook %s", c.ID)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative for webhook %s", c.ID)
	}
	if c.RetryIntervalMS < 0 {
		return fmt.Errorf("retry_interval_ms cannot be negative for webhook %s", c.ID)
	}
	if c.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms cannot be negative for webhook %s", c.ID)
	}
	return nil
}

// Loader holds the loaded webhooks
type Loader struct {
	webhooks map[string]webhook.Webhook
}

// NewLoader creates a new webhook loader
func NewLoader() *Loader {
	return &Loader{
		webhooks: make(map[string]webhook.Webhook),
	}
}

// Load reads and parses the webhooks.yaml file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading webhooks file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing webhooks YAML: %w", err)
	}

	for _, wc := range config.Webhooks {
		if err := wc.Validate(); err != nil {
			return fmt.Errorf("validating webhook: %w", err)
		}

		timeout := wc.TimeoutMS
		if timeout == 0 {
			timeout = int(webhook.DefaultTimeout.Milliseconds())
		}

		l.webhooks[wc.ID] = webhook.Webhook{
			ID:            wc.ID,
			TenantID:      wc.TenantID,
			URL:           wc.URL,
			Secret:        wc.Secret,
			Active:        wc.Active,
			MaxRetries:    wc.MaxRetries,
			RetryInterval: time.Duration(wc.RetryIntervalMS) * time.Millisecond,
			Timeout:       time.Duration(timeout) * time.Millisecond,
		}
	}

	return nil
}

// Get returns a webhook by id
func (l *Loader) Get(id string) (webhook.Webhook, error) {
	wh, ok := l.webhooks[id]
	if !ok {
		return webhook.Webhook{}, fmt.Errorf("webhook not found: %s", id)
	}
	return wh, nil
}

// List returns all loaded webhooks
func (l *Loader) List() []webhook.Webhook {
	out := make([]webhook.Webhook, 0, len(l.webhooks))
	for _, wh := range l.webhooks {
		out = append(out, wh)
	}
	return out
}

/* Seed writes the loaded webhooks into the store
 * Existing entries are replaced by id, so repeated boots converge
 */
func (l *Loader) Seed(ctx context.Context, store webhook.Store) error {
	for id, wh := range l.webhooks {
		existing, err := store.FindWebhook(ctx, id)
		if err != nil && !errors.Is(err, webhook.ErrWebhookNotFound) {
			return fmt.Errorf("checking webhook %s: %w", id, err)
		}
		if err == nil {
			wh.CreatedAt = existing.CreatedAt
			wh.LastTriggeredAt = existing.LastTriggeredAt
		}
		if _, err := store.CreateWebhook(ctx, wh); err != nil {
			return fmt.Errorf("seeding webhook %s: %w", id, err)
		}
	}
	return nil
}
