package webhook

import "time"

/* Webhook represents a tenant-owned delivery endpoint configuration
 * Uses value semantics as it represents data, not behavior
 * Configuration is created and edited elsewhere; the engine consumes it read-only
 */
type Webhook struct {
	ID              string
	TenantID        string
	URL             string
	Secret          string
	Active          bool
	MaxRetries      int
	RetryInterval   time.Duration
	Timeout         time.Duration
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultTimeout is applied when a webhook has no request timeout configured.
const DefaultTimeout = 30 * time.Second

// RequestTimeout returns the configured request timeout or the default.
func (w Webhook) RequestTimeout() time.Duration {
	if w.Timeout <= 0 {
		return DefaultTimeout
	}
	return w.Timeout
}
