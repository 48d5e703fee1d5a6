package dispatcher_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/marcelsud/webhook-outbox/webhook/dispatcher"
	"github.com/marcelsud/webhook-outbox/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseResumeStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	queue := memory.NewQueue()
	defer queue.Close(ctx)

	d := dispatcher.New(store, queue, dispatcher.Options{})

	_, err := d.Enqueue(ctx, "wh-1", "x", json.RawMessage(`{}`), nil)
	require.NoError(t, err)

	require.NoError(t, d.Pause(ctx))

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = queue.Dequeue(short)
	assert.Error(t, err, "paused dispatcher must not hand out jobs")

	counts, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Queued)

	require.NoError(t, d.Resume(ctx))
	_, err = queue.Dequeue(ctx)
	require.NoError(t, err)
}

func TestRetryFailedDeliveries(t *testing.T) {
	ctx := context.Background()

	seedFailed := func(t *testing.T, store webhook.Store, id, webhookID string, attempt int, age time.Duration) {
		t.Helper()
		_, err := store.CreateDelivery(ctx, webhook.Delivery{
			ID:        id,
			WebhookID: webhookID,
			Event:     "order.created",
			Payload:   json.RawMessage(`{}`),
			Attempt:   attempt,
			Status:    webhook.Failed,
			CreatedAt: time.Now().Add(-age),
		})
		require.NoError(t, err)
	}

	t.Run("success - eligible deliveries re-enqueued", func(t *testing.T) {
		store := memory.NewStore()
		queue := &recordingQueue{}
		seedWebhook(t, store, webhook.Webhook{ID: "wh-1", URL: "https://example.com", Secret: "x", Active: true, MaxRetries: 3})
		seedFailed(t, store, "d-1", "wh-1", 1, time.Minute)
		seedFailed(t, store, "d-2", "wh-1", 2, time.Minute)

		d := dispatcher.New(store, queue, dispatcher.Options{})

		count, err := d.RetryFailedDeliveries(ctx, "", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		calls := queue.calls()
		require.Len(t, calls, 2)
		for _, call := range calls {
			assert.Equal(t, "wh-1", call.job.WebhookID)
			assert.Greater(t, call.job.Attempt, 1)
		}
	})

	t.Run("skips exhausted chains", func(t *testing.T) {
		store := memory.NewStore()
		queue := &recordingQueue{}
		seedWebhook(t, store, webhook.Webhook{ID: "wh-1", URL: "https://example.com", Secret: "x", Active: true, MaxRetries: 3})
		seedFailed(t, store, "d-1", "wh-1", 3, time.Minute)

		d := dispatcher.New(store, queue, dispatcher.Options{})

		count, err := d.RetryFailedDeliveries(ctx, "", 0)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.Empty(t, queue.calls())
	})

	t.Run("skips inactive and unknown webhooks", func(t *testing.T) {
		store := memory.NewStore()
		queue := &recordingQueue{}
		seedWebhook(t, store, webhook.Webhook{ID: "wh-off", URL: "https://example.com", Secret: "x", Active: false, MaxRetries: 3})
		seedFailed(t, store, "d-1", "wh-off", 1, time.Minute)
		seedFailed(t, store, "d-2", "wh-gone", 1, time.Minute)

		d := dispatcher.New(store, queue, dispatcher.Options{})

		count, err := d.RetryFailedDeliveries(ctx, "", 0)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("max age bounds the window", func(t *testing.T) {
		store := memory.NewStore()
		queue := &recordingQueue{}
		seedWebhook(t, store, webhook.Webhook{ID: "wh-1", URL: "https://example.com", Secret: "x", Active: true, MaxRetries: 5})
		seedFailed(t, store, "fresh", "wh-1", 1, time.Minute)
		seedFailed(t, store, "stale", "wh-1", 1, 48*time.Hour)

		d := dispatcher.New(store, queue, dispatcher.Options{})

		count, err := d.RetryFailedDeliveries(ctx, "wh-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestCleanupOldDeliveries(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		store := memory.NewStore()
		queue := &recordingQueue{}
		old := time.Now().Add(-72 * time.Hour)
		for id, status := range map[string]webhook.Status{
			"old-delivered": webhook.Delivered,
			"old-failed":    webhook.Failed,
			"old-pending":   webhook.Pending,
		} {
			_, err := store.CreateDelivery(ctx, webhook.Delivery{ID: id, WebhookID: "wh-1", Status: status, CreatedAt: old})
			require.NoError(t, err)
		}
		_, err := store.CreateDelivery(ctx, webhook.Delivery{ID: "recent", WebhookID: "wh-1", Status: webhook.Delivered, CreatedAt: time.Now()})
		require.NoError(t, err)

		d := dispatcher.New(store, queue, dispatcher.Options{})

		count, err := d.CleanupOldDeliveries(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		remaining, err := store.QueryDeliveries(ctx, webhook.Filter{})
		require.NoError(t, err)
		assert.Len(t, remaining, 2, "pending and recent records survive")
	})

	t.Run("max age must be positive", func(t *testing.T) {
		d := dispatcher.New(memory.NewStore(), &recordingQueue{}, dispatcher.Options{})

		_, err := d.CleanupOldDeliveries(ctx, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})
}

func TestTestWebhook(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	store := memory.NewStore()
	queue := memory.NewQueue()
	defer queue.Close(context.Background())
	seedWebhook(t, store, webhook.Webhook{ID: "wh-1", URL: server.URL, Secret: "x", Active: true})

	d := dispatcher.New(store, queue, dispatcher.Options{Concurrency: 1})
	go d.Run(ctx)

	result, err := d.TestWebhook(ctx, "wh-1", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.HTTPStatus)
	assert.Equal(t, 200, *result.HTTPStatus)

	var env webhook.Envelope
	require.NoError(t, json.Unmarshal(received, &env))
	assert.Equal(t, "test", env.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, true, payload["test"])
	assert.Contains(t, payload, "triggered_at")
}
