package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* Job is the queue-transport unit for one delivery attempt
 * Not persisted beyond the queue; durable history lives in Delivery records
 */
type Job struct {
	WebhookID string            `json:"webhook_id"`
	Event     string            `json:"event"`
	Payload   json.RawMessage   `json:"payload"`
	Headers   map[string]string `json:"headers,omitempty"`
	Attempt   int               `json:"attempt"`
}

// AttemptNumber returns the 1-based attempt this job represents.
func (j Job) AttemptNumber() int {
	if j.Attempt < 1 {
		return 1
	}
	return j.Attempt
}

/* NewIdempotencyKey builds the queue uniqueness key for one logical attempt
 * Form: webhook-{webhookID}-{attempt}-{suffix}
 * The suffix keeps distinct enqueues of the same attempt chain apart while the
 * queue rejects concurrent duplicates of an identical key
 */
func NewIdempotencyKey(webhookID string, attempt int) string {
	return fmt.Sprintf("webhook-%s-%d-%s", webhookID, attempt, uuid.New().String()[:8])
}

/* Result is the outcome of one delivery attempt
 * Returned to synchronous waiters (test deliveries) and published to observers
 */
type Result struct {
	Success    bool           `json:"success"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	HTTPStatus *int           `json:"http_status,omitempty"`
	Response   string         `json:"response,omitempty"`
	Error      string         `json:"error,omitempty"`
	RetryAfter *time.Duration `json:"retry_after,omitempty"`
}
