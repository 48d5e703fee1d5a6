package webhook

import (
	"encoding/json"
	"time"
)

// MaxResponseBytes bounds how much of an endpoint's response body is recorded.
const MaxResponseBytes = 10_000

/* Delivery represents one attempt at delivering an event to a webhook
 * Append-style history: a failed attempt is never mutated into a retry,
 * each retry gets its own record with an incremented Attempt
 */
type Delivery struct {
	ID          string
	WebhookID   string
	Event       string
	Payload     json.RawMessage
	Headers     map[string]string
	Attempt     int
	Status      Status
	HTTPStatus  *int
	Response    string
	Error       *string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
	NextRetryAt *time.Time
}

/* DeliveryUpdate carries the fields an outcome write may set
 * Nil fields are left untouched by the store
 */
type DeliveryUpdate struct {
	Status      *Status
	HTTPStatus  *int
	Response    *string
	Error       *string
	DeliveredAt *time.Time
	CompletedAt *time.Time
	NextRetryAt *time.Time
}

// WebhookUpdate carries the webhook fields the engine is allowed to write.
type WebhookUpdate struct {
	Active          *bool
	LastTriggeredAt *time.Time
}

// TruncateResponse caps a response body at MaxResponseBytes.
func TruncateResponse(body []byte) string {
	if len(body) > MaxResponseBytes {
		body = body[:MaxResponseBytes]
	}
	return string(body)
}
