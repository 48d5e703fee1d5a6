package webhook

import (
	"context"
	"time"
)

/* Queue is the at-least-once job transport the dispatcher consumes
 * The concrete transport (in-memory, Redis, broker-backed) is swappable
 * without touching dispatcher logic
 */

// JobState is the queue-side lifecycle phase of a job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobDelayed   JobState = "delayed"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// EnqueueOptions control scheduling of a single job.
type EnqueueOptions struct {
	// Delay keeps the job invisible to Dequeue until it elapses
	Delay time.Duration
	// IdempotencyKey rejects a concurrent duplicate of the same logical attempt
	IdempotencyKey string
}

// QueuedJob is a dequeued job together with its queue-assigned id.
type QueuedJob struct {
	ID  string
	Job Job
}

// Counts is a point-in-time snapshot of jobs per lifecycle phase.
type Counts struct {
	Queued    int64 `json:"queued"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type Queue interface {
	/* Enqueue schedules a job, optionally delayed
	 * Returns ErrDuplicateJob when the idempotency key is already held
	 */
	Enqueue(ctx context.Context, job Job, opts EnqueueOptions) (string, error)
	/* Dequeue blocks until a job is available or the context is cancelled
	 * A job handed to one worker is never handed to another
	 */
	Dequeue(ctx context.Context) (QueuedJob, error)
	/* Complete records the outcome of a dequeued job
	 * The job moves to JobCompleted or JobFailed based on result.Success
	 */
	Complete(ctx context.Context, jobID string, result Result) error
	State(ctx context.Context, jobID string) (JobState, error)
	// JobResult returns the stored outcome of a completed or failed job
	JobResult(ctx context.Context, jobID string) (Result, error)
	Counts(ctx context.Context) (Counts, error)
	/* Pause stops handing out jobs without affecting in-flight executions
	 * Resume undoes it
	 */
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close(ctx context.Context) error
}
