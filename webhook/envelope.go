package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/* Envelope is the JSON body sent to the webhook endpoint
 * It wraps the raw event payload with delivery metadata
 */
type Envelope struct {
	// ID is a fresh identifier for this envelope, not the delivery record id
	ID string `json:"id"`

	// Event is the full-stop delimited event name, e.g. "conversation.created"
	Event string `json:"event"`

	// Timestamp is the ISO 8601 formatted time the envelope was built
	Timestamp time.Time `json:"timestamp"`

	// Data is the opaque event payload
	Data json.RawMessage `json:"data"`

	// Webhook echoes the destination so receivers can route without lookups
	Webhook EnvelopeTarget `json:"webhook"`
}

// EnvelopeTarget identifies the webhook an envelope was built for.
type EnvelopeTarget struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewEnvelope builds the envelope for one delivery attempt.
func NewEnvelope(event string, data json.RawMessage, wh Webhook, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: now.UTC(),
		Data:      data,
		Webhook:   EnvelopeTarget{ID: wh.ID, URL: wh.URL},
	}
}

// MarshalJSON returns the JSON encoding with an RFC 3339 timestamp
func (e Envelope) MarshalJSON() ([]byte, error) {
	type Alias Envelope
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Alias:     (*Alias)(&e),
	})
}

// UnmarshalJSON parses the JSON-encoded envelope and stores the result
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type Alias Envelope
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling envelope: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339, aux.Timestamp)
	if err != nil {
		return fmt.Errorf("parsing timestamp: %w", err)
	}
	e.Timestamp = timestamp

	return nil
}
