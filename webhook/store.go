package webhook

import (
	"context"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * The dispatcher only ever talks to storage through these, never to a client directly
 */

/* Filter narrows delivery queries and deletes
 * Zero values mean "any"
 */
type Filter struct {
	WebhookID string
	Status    Status    // zero matches any status
	Terminal  bool      // only delivered or failed records
	OlderThan time.Time // CreatedAt strictly before
	NewerThan time.Time // CreatedAt at or after
	Limit     int
}

// Matches reports whether a delivery satisfies the filter.
func (f Filter) Matches(d Delivery) bool {
	if f.WebhookID != "" && d.WebhookID != f.WebhookID {
		return false
	}
	if f.Status != 0 && d.Status != f.Status {
		return false
	}
	if f.Terminal && !d.Status.IsFinal() {
		return false
	}
	if !f.OlderThan.IsZero() && !d.CreatedAt.Before(f.OlderThan) {
		return false
	}
	if !f.NewerThan.IsZero() && d.CreatedAt.Before(f.NewerThan) {
		return false
	}
	return true
}

// Reader provides read operations for webhook configuration and delivery history
type Reader interface {
	/* Context is always the first parameter in functions that do I/O
	 * This allows for cancellation, timeouts, and shared values
	 */
	FindWebhook(ctx context.Context, id string) (Webhook, error)
	QueryDeliveries(ctx context.Context, filter Filter) ([]Delivery, error)
}

// Writer provides write operations for webhooks and delivery records
type Writer interface {
	CreateWebhook(ctx context.Context, wh Webhook) (string, error)
	UpdateWebhook(ctx context.Context, id string, fields WebhookUpdate) error
	/* CreateDelivery persists a new attempt record
	 * Returns the delivery ID (the record's own if pre-set)
	 */
	CreateDelivery(ctx context.Context, d Delivery) (string, error)
	UpdateDelivery(ctx context.Context, id string, fields DeliveryUpdate) error
	DeleteDeliveries(ctx context.Context, filter Filter) (int, error)
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Store interface {
	Reader
	Writer
	Close(ctx context.Context) error
}
