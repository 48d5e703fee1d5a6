package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
)

/* Operational surface of the engine: pause/resume, status snapshots,
 * bulk retry of failed chains, history cleanup, and synchronous test delivery
 */

// testPollInterval is how often TestWebhook checks the job state.
const testPollInterval = 100 * time.Millisecond

// Pause stops pulling new jobs from the queue; in-flight executions finish.
func (d *Dispatcher) Pause(ctx context.Context) error {
	if err := d.queue.Pause(ctx); err != nil {
		return fmt.Errorf("pausing queue: %w", err)
	}
	d.log.Info().Msg("dispatcher paused")
	return nil
}

// Resume restarts pulling jobs from the queue.
func (d *Dispatcher) Resume(ctx context.Context) error {
	if err := d.queue.Resume(ctx); err != nil {
		return fmt.Errorf("resuming queue: %w", err)
	}
	d.log.Info().Msg("dispatcher resumed")
	return nil
}

// Status reports a point-in-time snapshot of jobs per lifecycle phase.
// Not a consistency guarantee under concurrent mutation.
func (d *Dispatcher) Status(ctx context.Context) (webhook.Counts, error) {
	counts, err := d.queue.Counts(ctx)
	if err != nil {
		return webhook.Counts{}, fmt.Errorf("counting jobs: %w", err)
	}
	return counts, nil
}

/* RetryFailedDeliveries re-enqueues one fresh job per eligible failed delivery
 * Skips deliveries whose owning webhook is inactive or unknown, and any whose
 * attempt already reached the webhook's retry ceiling
 * Returns the count actually re-enqueued
 */
func (d *Dispatcher) RetryFailedDeliveries(ctx context.Context, webhookID string, maxAge time.Duration) (int, error) {
	filter := webhook.Filter{
		WebhookID: webhookID,
		Status:    webhook.Failed,
	}
	if maxAge > 0 {
		filter.NewerThan = d.now().Add(-maxAge)
	}

	deliveries, err := d.store.QueryDeliveries(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("querying failed deliveries: %w", err)
	}

	webhooks := make(map[string]*webhook.Webhook)
	count := 0
	for _, del := range deliveries {
		wh, ok := webhooks[del.WebhookID]
		if !ok {
			found, err := d.store.FindWebhook(ctx, del.WebhookID)
			if err != nil {
				if !errors.Is(err, webhook.ErrWebhookNotFound) {
					return count, fmt.Errorf("loading webhook %s: %w", del.WebhookID, err)
				}
				webhooks[del.WebhookID] = nil
				continue
			}
			wh = &found
			webhooks[del.WebhookID] = wh
		}
		if wh == nil || !wh.Active {
			continue
		}
		if del.Attempt >= wh.MaxRetries {
			continue
		}

		job := webhook.Job{
			WebhookID: del.WebhookID,
			Event:     del.Event,
			Payload:   del.Payload,
			Headers:   del.Headers,
			Attempt:   del.Attempt + 1,
		}
		_, err := d.queue.Enqueue(ctx, job, webhook.EnqueueOptions{
			IdempotencyKey: webhook.NewIdempotencyKey(del.WebhookID, del.Attempt+1),
		})
		if err != nil {
			if errors.Is(err, webhook.ErrDuplicateJob) {
				continue
			}
			return count, fmt.Errorf("re-enqueuing delivery %s: %w", del.ID, err)
		}
		count++
	}

	d.log.Info().Int("count", count).Str("webhook_id", webhookID).Msg("re-enqueued failed deliveries")
	return count, nil
}

/* CleanupOldDeliveries removes terminal delivery records older than maxAge
 * Pending records survive regardless of age
 */
func (d *Dispatcher) CleanupOldDeliveries(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("cleanup max age must be positive")
	}
	count, err := d.store.DeleteDeliveries(ctx, webhook.Filter{
		Terminal:  true,
		OlderThan: d.now().Add(-maxAge),
	})
	if err != nil {
		return 0, fmt.Errorf("deleting old deliveries: %w", err)
	}
	d.log.Info().Int("count", count).Msg("cleaned up old deliveries")
	return count, nil
}

/* TestWebhook enqueues a synthetic delivery and waits for the first attempt
 * The normal retry and backoff machinery still applies; only the first
 * attempt's outcome is awaited
 */
func (d *Dispatcher) TestWebhook(ctx context.Context, webhookID, event string) (webhook.Result, error) {
	if event == "" {
		event = "test"
	}
	payload, err := json.Marshal(map[string]any{
		"test":         true,
		"triggered_at": d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return webhook.Result{}, fmt.Errorf("building test payload: %w", err)
	}

	job := webhook.Job{
		WebhookID: webhookID,
		Event:     event,
		Payload:   payload,
		Attempt:   1,
	}
	jobID, err := d.queue.Enqueue(ctx, job, webhook.EnqueueOptions{
		IdempotencyKey: webhook.NewIdempotencyKey(webhookID, 1),
	})
	if err != nil {
		return webhook.Result{}, fmt.Errorf("enqueuing test delivery: %w", err)
	}

	ticker := time.NewTicker(testPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return webhook.Result{}, ctx.Err()
		case <-ticker.C:
			state, err := d.queue.State(ctx, jobID)
			if err != nil {
				return webhook.Result{}, fmt.Errorf("polling test delivery: %w", err)
			}
			if state == webhook.JobCompleted || state == webhook.JobFailed {
				result, err := d.queue.JobResult(ctx, jobID)
				if err != nil {
					return webhook.Result{}, fmt.Errorf("reading test delivery result: %w", err)
				}
				return result, nil
			}
		}
	}
}
