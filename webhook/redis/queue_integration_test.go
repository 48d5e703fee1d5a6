//go:build integration

package redis_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, ctx)

	job := webhook.Job{
		WebhookID: "wh-1",
		Event:     "order.created",
		Payload:   json.RawMessage(`{"order_id":42}`),
		Attempt:   1,
	}

	jobID, err := queue.Enqueue(ctx, job, webhook.EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	state, err := queue.State(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, webhook.JobQueued, state)

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobID, got.ID)
	assert.Equal(t, "order.created", got.Job.Event)
	assert.JSONEq(t, `{"order_id":42}`, string(got.Job.Payload))

	state, err = queue.State(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, webhook.JobActive, state)
}

func TestQueueIdempotency(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, ctx)

	opts := webhook.EnqueueOptions{IdempotencyKey: "webhook-wh-1-1-abcd1234"}
	job := webhook.Job{WebhookID: "wh-1", Attempt: 1}

	jobID, err := queue.Enqueue(ctx, job, opts)
	require.NoError(t, err)

	_, err = queue.Enqueue(ctx, job, opts)
	assert.ErrorIs(t, err, webhook.ErrDuplicateJob)

	// Completion releases the key
	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, jobID, got.ID)
	require.NoError(t, queue.Complete(ctx, jobID, webhook.Result{Success: true}))

	_, err = queue.Enqueue(ctx, job, opts)
	require.NoError(t, err)
}

func TestQueueDelayedPromotion(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, ctx)

	jobID, err := queue.Enqueue(ctx, webhook.Job{WebhookID: "wh-1", Event: "later", Attempt: 2}, webhook.EnqueueOptions{
		Delay: 2 * time.Second,
	})
	require.NoError(t, err)

	state, err := queue.State(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, webhook.JobDelayed, state)

	counts, err := queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Delayed)
	assert.Equal(t, int64(0), counts.Queued)

	// Dequeue blocks until the delay elapses and the job is promoted
	start := time.Now()
	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobID, got.ID)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestQueueCompleteAndResult(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, ctx)

	jobID, err := queue.Enqueue(ctx, webhook.Job{WebhookID: "wh-1", Attempt: 1}, webhook.EnqueueOptions{})
	require.NoError(t, err)
	_, err = queue.Dequeue(ctx)
	require.NoError(t, err)

	code := 200
	require.NoError(t, queue.Complete(ctx, jobID, webhook.Result{
		Success:    true,
		DeliveryID: "del-1",
		HTTPStatus: &code,
		Response:   "ok",
	}))

	state, err := queue.State(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, webhook.JobCompleted, state)

	result, err := queue.JobResult(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "del-1", result.DeliveryID)
	require.NotNil(t, result.HTTPStatus)
	assert.Equal(t, 200, *result.HTTPStatus)

	counts, err := queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Active)
	assert.Equal(t, int64(1), counts.Completed)

	t.Run("unknown job", func(t *testing.T) {
		err := queue.Complete(ctx, "missing", webhook.Result{})
		assert.ErrorIs(t, err, webhook.ErrJobNotFound)
	})
}

func TestQueueConcurrentDequeueOfDelayedJobs(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, ctx)

	const jobs = 20
	ids := make(map[string]bool, jobs)
	for i := 0; i < jobs; i++ {
		jobID, err := queue.Enqueue(ctx, webhook.Job{WebhookID: "wh-1", Attempt: 1}, webhook.EnqueueOptions{
			Delay: 50 * time.Millisecond,
		})
		require.NoError(t, err)
		ids[jobID] = true
	}

	// Competing workers must each receive a job exactly once
	var mu sync.Mutex
	seen := make(map[string]int, jobs)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				got, err := queue.Dequeue(dctx)
				cancel()
				if err != nil {
					return
				}
				mu.Lock()
				seen[got.ID]++
				done := len(seen) == jobs
				mu.Unlock()
				assert.NoError(t, queue.Complete(ctx, got.ID, webhook.Result{Success: true}))
				if done {
					return
				}
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, jobs)
	for jobID, count := range seen {
		assert.True(t, ids[jobID], "unknown job %s handed out", jobID)
		assert.Equal(t, 1, count, "job %s handed to more than one worker", jobID)
	}

	counts, err := queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Queued)
	assert.Equal(t, int64(0), counts.Delayed)
	assert.Equal(t, int64(0), counts.Active)
	assert.Equal(t, int64(jobs), counts.Completed)
}

func TestQueuePauseResume(t *testing.T) {
	ctx := context.Background()
	queue := newTestQueue(t, ctx)

	_, err := queue.Enqueue(ctx, webhook.Job{WebhookID: "wh-1", Attempt: 1}, webhook.EnqueueOptions{})
	require.NoError(t, err)
	require.NoError(t, queue.Pause(ctx))

	short, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = queue.Dequeue(short)
	assert.Error(t, err, "paused queue must not hand out jobs")

	require.NoError(t, queue.Resume(ctx))
	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wh-1", got.Job.WebhookID)
}
