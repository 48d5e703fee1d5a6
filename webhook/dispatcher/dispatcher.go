package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/marcelsud/webhook-outbox/webhook/backoff"
	"github.com/marcelsud/webhook-outbox/webhook/ratelimit"
	"github.com/marcelsud/webhook-outbox/webhook/signature"
	"github.com/rs/zerolog"
)

/* Dispatcher executes delivery jobs with a bounded worker pool
 * Each worker runs one job end-to-end (HTTP call + store updates) before
 * pulling the next; workers only contend on the rate limiter and the store
 */

const (
	// DefaultConcurrency is the worker pool size when none is configured
	DefaultConcurrency = 10

	// UserAgent identifies the engine on outbound requests
	UserAgent = "webhook-outbox-Webhooks/1.0"

	// maxRedirects bounds redirect following on outbound calls
	maxRedirects = 3

	// dequeueRetryDelay is how long a worker waits after a failed dequeue
	dequeueRetryDelay = time.Second
)

type Dispatcher struct {
	store       webhook.Store
	queue       webhook.Queue
	backoff     *backoff.Scheduler
	limiter     *ratelimit.Limiter
	client      *http.Client
	log         zerolog.Logger
	observers   []webhook.Observer
	concurrency int
	now         func() time.Time
}

// Options configure a Dispatcher. Zero values get sensible defaults.
type Options struct {
	Concurrency int
	RateLimit   int           // dispatches per RateWindow, 0 = unlimited
	RateWindow  time.Duration // defaults to one minute
	Client      *http.Client  // defaults to a redirect-capped client
	Logger      zerolog.Logger
	Observers   []webhook.Observer
	Backoff     *backoff.Scheduler
	Now         func() time.Time
}

// New creates a Dispatcher over the given store and queue
func New(store webhook.Store, queue webhook.Queue, opts Options) *Dispatcher {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	window := opts.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	client := opts.Client
	if client == nil {
		client = NewHTTPClient()
	}
	sched := opts.Backoff
	if sched == nil {
		sched = backoff.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		store:       store,
		queue:       queue,
		backoff:     sched,
		limiter:     ratelimit.New(opts.RateLimit, window),
		client:      client,
		log:         opts.Logger,
		observers:   opts.Observers,
		concurrency: concurrency,
		now:         now,
	}
}

/* NewHTTPClient builds the outbound client: redirects are followed up to
 * maxRedirects hops, then the last response is accepted as-is
 * Request timeouts are applied per-webhook via the request context
 */
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// Run starts the worker pool and blocks until the context is cancelled
// and all in-flight jobs have finished.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for {
		// Throttle before pulling: a job that cannot run within the
		// rate window is simply not dequeued until capacity frees up
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}

		qj, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Int("worker", worker).Msg("dequeuing job")
			// Back off so a persistent queue outage does not busy-spin the pool
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}

		result := d.Deliver(ctx, qj.Job)
		if err := d.queue.Complete(ctx, qj.ID, result); err != nil {
			d.log.Error().Err(err).Str("job_id", qj.ID).Msg("completing job")
		}
	}
}

/* Enqueue schedules the first attempt of a delivery
 * This is the event producer entry point
 */
func (d *Dispatcher) Enqueue(ctx context.Context, webhookID, event string, payload json.RawMessage, headers map[string]string) (string, error) {
	job := webhook.Job{
		WebhookID: webhookID,
		Event:     event,
		Payload:   payload,
		Headers:   headers,
		Attempt:   1,
	}
	jobID, err := d.queue.Enqueue(ctx, job, webhook.EnqueueOptions{
		IdempotencyKey: webhook.NewIdempotencyKey(webhookID, 1),
	})
	if err != nil {
		return "", fmt.Errorf("enqueuing delivery: %w", err)
	}
	d.publish(webhook.JobEvent{
		Type:      webhook.JobEnqueued,
		WebhookID: webhookID,
		Event:     event,
		Attempt:   1,
	})
	return jobID, nil
}

// Deliver executes one delivery attempt end-to-end and decides the outcome.
func (d *Dispatcher) Deliver(ctx context.Context, job webhook.Job) webhook.Result {
	attempt := job.AttemptNumber()

	// Unknown or inactive webhooks are configuration errors: terminal,
	// never retried, and no delivery record is written
	wh, err := d.store.FindWebhook(ctx, job.WebhookID)
	if err != nil {
		if !errors.Is(err, webhook.ErrWebhookNotFound) {
			d.log.Error().Err(err).Str("webhook_id", job.WebhookID).Msg("loading webhook")
		}
		return d.configFailure(job, attempt, "Webhook not found")
	}
	if !wh.Active {
		return d.configFailure(job, attempt, "Webhook is inactive")
	}

	now := d.now()
	delivery := webhook.Delivery{
		ID:        uuid.New().String(),
		WebhookID: wh.ID,
		Event:     job.Event,
		Payload:   job.Payload,
		Headers:   job.Headers,
		Attempt:   attempt,
		Status:    webhook.Pending,
		CreatedAt: now,
	}
	if _, err := d.store.CreateDelivery(ctx, delivery); err != nil {
		// Best-effort gap: the attempt proceeds, the durable record may be missing
		d.log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("creating delivery record")
	}
	d.publish(webhook.JobEvent{
		Type:       webhook.JobStarted,
		WebhookID:  wh.ID,
		DeliveryID: delivery.ID,
		Event:      job.Event,
		Attempt:    attempt,
	})

	result := webhook.Result{DeliveryID: delivery.ID}

	envelope := webhook.NewEnvelope(job.Event, job.Payload, wh, now)
	body, err := json.Marshal(envelope)
	if err != nil {
		// Unserializable payload: nothing a retry could fix
		msg := fmt.Sprintf("Invalid payload: %v", err)
		d.recordFailure(ctx, delivery.ID, msg, nil, "")
		result.Error = msg
		d.publish(webhook.JobEvent{
			Type:       webhook.JobDeliveryFailed,
			WebhookID:  wh.ID,
			DeliveryID: delivery.ID,
			Event:      job.Event,
			Attempt:    attempt,
			Error:      msg,
		})
		return result
	}

	resp, err := d.post(ctx, wh, delivery.ID, job, body)
	if err != nil {
		derr := classifyTransport(err)
		d.recordFailure(ctx, delivery.ID, derr.Message, nil, "")
		result.Error = derr.Message
		d.publish(webhook.JobEvent{
			Type:       webhook.JobDeliveryFailed,
			WebhookID:  wh.ID,
			DeliveryID: delivery.ID,
			Event:      job.Event,
			Attempt:    attempt,
			Error:      derr.Message,
		})
		d.scheduleRetry(ctx, job, wh, delivery.ID, attempt, &result)
		return result
	}
	defer resp.Body.Close()

	// Any final status code is accepted; success iff [200,300)
	raw, err := io.ReadAll(io.LimitReader(resp.Body, webhook.MaxResponseBytes+1))
	if err != nil {
		d.log.Warn().Err(err).Str("delivery_id", delivery.ID).Msg("reading response body")
	}
	response := webhook.TruncateResponse(raw)
	code := resp.StatusCode
	result.HTTPStatus = &code
	result.Response = response

	if code >= 200 && code < 300 {
		completed := d.now()
		delivered := webhook.Delivered
		update := webhook.DeliveryUpdate{
			Status:      &delivered,
			HTTPStatus:  &code,
			Response:    &response,
			DeliveredAt: &completed,
			CompletedAt: &completed,
		}
		if err := d.store.UpdateDelivery(ctx, delivery.ID, update); err != nil {
			d.log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("recording delivered outcome")
		}
		if err := d.store.UpdateWebhook(ctx, wh.ID, webhook.WebhookUpdate{LastTriggeredAt: &completed}); err != nil {
			d.log.Error().Err(err).Str("webhook_id", wh.ID).Msg("updating last triggered time")
		}
		result.Success = true
		d.publish(webhook.JobEvent{
			Type:       webhook.JobDelivered,
			WebhookID:  wh.ID,
			DeliveryID: delivery.ID,
			Event:      job.Event,
			Attempt:    attempt,
			HTTPStatus: &code,
		})
		return result
	}

	msg := webhook.NewApplicationError(code).Message
	d.recordFailure(ctx, delivery.ID, msg, &code, response)
	result.Error = msg
	d.publish(webhook.JobEvent{
		Type:       webhook.JobDeliveryFailed,
		WebhookID:  wh.ID,
		DeliveryID: delivery.ID,
		Event:      job.Event,
		Attempt:    attempt,
		HTTPStatus: &code,
		Error:      msg,
	})
	d.scheduleRetry(ctx, job, wh, delivery.ID, attempt, &result)
	return result
}

// post performs the signed HTTP POST with the webhook's own timeout.
func (d *Dispatcher) post(ctx context.Context, wh webhook.Webhook, deliveryID string, job webhook.Job, body []byte) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, wh.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Signature", signature.Sign(wh.Secret, body))
	req.Header.Set("X-Event", job.Event)
	req.Header.Set("X-Delivery", deliveryID)
	for key, value := range job.Headers {
		req.Header.Set(key, value)
	}

	return d.client.Do(req)
}

// configFailure reports a non-retryable configuration error.
func (d *Dispatcher) configFailure(job webhook.Job, attempt int, msg string) webhook.Result {
	d.publish(webhook.JobEvent{
		Type:      webhook.JobDeliveryFailed,
		WebhookID: job.WebhookID,
		Event:     job.Event,
		Attempt:   attempt,
		Error:     msg,
	})
	return webhook.Result{Error: msg}
}

// recordFailure writes a failed outcome onto the delivery record.
func (d *Dispatcher) recordFailure(ctx context.Context, deliveryID, msg string, httpStatus *int, response string) {
	completed := d.now()
	failed := webhook.Failed
	update := webhook.DeliveryUpdate{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &completed,
	}
	if httpStatus != nil {
		update.HTTPStatus = httpStatus
		update.Response = &response
	}
	if err := d.store.UpdateDelivery(ctx, deliveryID, update); err != nil {
		d.log.Error().Err(err).Str("delivery_id", deliveryID).Msg("recording failed outcome")
	}
}

/* scheduleRetry re-enqueues the next attempt after a retryable failure
 * The superseded record is annotated with NextRetryAt; the new job carries
 * attempt+1 and a fresh idempotency key, delayed by the backoff
 */
func (d *Dispatcher) scheduleRetry(ctx context.Context, job webhook.Job, wh webhook.Webhook, deliveryID string, attempt int, result *webhook.Result) {
	if attempt >= wh.MaxRetries {
		return
	}

	delay := d.backoff.NextDelay(attempt, wh.RetryInterval)
	next := d.now().Add(delay)
	if err := d.store.UpdateDelivery(ctx, deliveryID, webhook.DeliveryUpdate{NextRetryAt: &next}); err != nil {
		d.log.Error().Err(err).Str("delivery_id", deliveryID).Msg("annotating next retry time")
	}

	retry := job
	retry.Attempt = attempt + 1
	_, err := d.queue.Enqueue(ctx, retry, webhook.EnqueueOptions{
		Delay:          delay,
		IdempotencyKey: webhook.NewIdempotencyKey(wh.ID, attempt+1),
	})
	if err != nil {
		if errors.Is(err, webhook.ErrDuplicateJob) {
			d.log.Debug().Str("webhook_id", wh.ID).Int("attempt", attempt+1).Msg("retry already scheduled")
		} else {
			d.log.Error().Err(err).Str("webhook_id", wh.ID).Msg("scheduling retry")
		}
		return
	}

	result.RetryAfter = &delay
	d.publish(webhook.JobEvent{
		Type:       webhook.JobRetryScheduled,
		WebhookID:  wh.ID,
		DeliveryID: deliveryID,
		Event:      job.Event,
		Attempt:    attempt + 1,
	})
}

func (d *Dispatcher) publish(event webhook.JobEvent) {
	if event.At.IsZero() {
		event.At = d.now()
	}
	for _, o := range d.observers {
		o.OnJobEvent(event)
	}
}

// classifyTransport maps a transport error to a stable message.
func classifyTransport(err error) *webhook.DeliveryError {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return webhook.NewTransportError("Request timeout", err)
	}
	return webhook.NewTransportError("Network error", err)
}
