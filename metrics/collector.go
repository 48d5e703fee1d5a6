package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
)

// EngineCollector implements the Collector interface over the queue and store
type EngineCollector struct {
	queue webhook.Queue
	store webhook.Reader
}

// NewEngineCollector creates a collector reading live engine state
func NewEngineCollector(queue webhook.Queue, store webhook.Reader) *EngineCollector {
	return &EngineCollector{
		queue: queue,
		store: store,
	}
}

// Collect gathers all metrics from the engine
func (c *EngineCollector) Collect(ctx context.Context) (Metrics, error) {
	jobCounts, err := c.GetJobCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting job counts: %w", err)
	}

	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	return Metrics{
		JobCounts:    jobCounts,
		StatusCounts: statusCounts,
		Timestamp:    time.Now(),
	}, nil
}

// GetJobCounts returns the queue snapshot per lifecycle phase
func (c *EngineCollector) GetJobCounts(ctx context.Context) (webhook.Counts, error) {
	return c.queue.Counts(ctx)
}

// GetStatusCounts returns counts of delivery records grouped by status
func (c *EngineCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	statusCounts := map[string]int64{
		"pending":   0,
		"delivered": 0,
		"failed":    0,
	}

	deliveries, err := c.store.QueryDeliveries(ctx, webhook.Filter{})
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	for _, d := range deliveries {
		statusCounts[d.Status.String()]++
	}

	return statusCounts, nil
}
