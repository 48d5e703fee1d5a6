package metrics

import (
	"context"
	"fmt"

	"github.com/marcelsud/webhook-outbox/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

/* Recorder bridges dispatcher lifecycle events to OTel counters
 * It implements webhook.Observer, so it is handed to the dispatcher at
 * construction like any other observer
 */
type Recorder struct {
	enqueued  metric.Int64Counter
	delivered metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
}

// NewRecorder creates counters on the given meter
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	enqueued, err := meter.Int64Counter(
		"webhook.jobs.enqueued",
		metric.WithDescription("Delivery jobs accepted onto the queue"),
		metric.WithUnit("{jobs}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating enqueued counter: %w", err)
	}

	delivered, err := meter.Int64Counter(
		"webhook.deliveries.delivered",
		metric.WithDescription("Delivery attempts that reached the endpoint with a 2xx"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}

	failed, err := meter.Int64Counter(
		"webhook.deliveries.failed",
		metric.WithDescription("Delivery attempts that failed"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	retried, err := meter.Int64Counter(
		"webhook.deliveries.retried",
		metric.WithDescription("Retry attempts scheduled after failures"),
		metric.WithUnit("{retries}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating retried counter: %w", err)
	}

	return &Recorder{
		enqueued:  enqueued,
		delivered: delivered,
		failed:    failed,
		retried:   retried,
	}, nil
}

// OnJobEvent implements webhook.Observer
func (r *Recorder) OnJobEvent(event webhook.JobEvent) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("webhook.id", event.WebhookID))

	switch event.Type {
	case webhook.JobEnqueued:
		r.enqueued.Add(ctx, 1, attrs)
	case webhook.JobDelivered:
		r.delivered.Add(ctx, 1, attrs)
	case webhook.JobDeliveryFailed:
		r.failed.Add(ctx, 1, attrs)
	case webhook.JobRetryScheduled:
		r.retried.Add(ctx, 1, attrs)
	}
}
