package metrics

import (
	"context"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook"
)

// Metrics represents the current state of the delivery engine.
type Metrics struct {
	// JobCounts is the queue snapshot per lifecycle phase
	JobCounts webhook.Counts `json:"job_counts"`

	// StatusCounts maps delivery status name to count of records in that status
	StatusCounts map[string]int64 `json:"status_counts"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// Collector defines the interface for collecting metrics from the engine.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetJobCounts returns the queue snapshot per lifecycle phase
	GetJobCounts(ctx context.Context) (webhook.Counts, error)

	// GetStatusCounts returns the count of delivery records by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)
}
