package webhook_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	wh := webhook.Webhook{
		ID:  "wh-1",
		URL: "https://example.com/hook",
	}
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.FixedZone("BRT", -3*60*60))

	env := webhook.NewEnvelope("order.created", json.RawMessage(`{"order_id":42}`), wh, now)

	_, err := uuid.Parse(env.ID)
	require.NoError(t, err)
	assert.Equal(t, "order.created", env.Event)
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.True(t, env.Timestamp.Equal(now))
	assert.Equal(t, "wh-1", env.Webhook.ID)
	assert.Equal(t, "https://example.com/hook", env.Webhook.URL)
}

func TestEnvelopeMarshalJSON(t *testing.T) {
	env := webhook.Envelope{
		ID:        "env-1",
		Event:     "user.created",
		Timestamp: time.Date(2025, 6, 15, 13, 30, 0, 0, time.UTC),
		Data:      json.RawMessage(`{"id":"u-1"}`),
		Webhook:   webhook.EnvelopeTarget{ID: "wh-1", URL: "https://example.com/hook"},
	}

	body, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "env-1", decoded["id"])
	assert.Equal(t, "user.created", decoded["event"])
	assert.Equal(t, "2025-06-15T13:30:00Z", decoded["timestamp"])

	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u-1", data["id"])

	target, ok := decoded["webhook"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "wh-1", target["id"])
	assert.Equal(t, "https://example.com/hook", target["url"])
}

func TestEnvelopeUnmarshalJSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		body := []byte(`{"id":"env-2","event":"user.deleted","timestamp":"2025-06-15T13:30:00Z","data":{"id":"u-2"},"webhook":{"id":"wh-2","url":"https://example.com/x"}}`)

		var env webhook.Envelope
		require.NoError(t, json.Unmarshal(body, &env))
		assert.Equal(t, "env-2", env.ID)
		assert.Equal(t, "user.deleted", env.Event)
		assert.True(t, env.Timestamp.Equal(time.Date(2025, 6, 15, 13, 30, 0, 0, time.UTC)))
		assert.Equal(t, "wh-2", env.Webhook.ID)
	})

	t.Run("invalid timestamp", func(t *testing.T) {
		body := []byte(`{"id":"env-3","event":"x","timestamp":"yesterday","data":null,"webhook":{}}`)

		var env webhook.Envelope
		err := json.Unmarshal(body, &env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing timestamp")
	})
}
