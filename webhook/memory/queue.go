package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-outbox/webhook"
)

/* In-memory implementation of webhook.Queue
 * FIFO list plus a delayed set promoted on each poll; idempotency keys are
 * held until the owning job reaches a terminal state
 */

const pollInterval = 50 * time.Millisecond

type entry struct {
	id     string
	job    webhook.Job
	key    string
	state  webhook.JobState
	dueAt  time.Time
	result webhook.Result
}

type Queue struct {
	mu      sync.Mutex
	ready   []*entry
	delayed []*entry
	jobs    map[string]*entry
	keys    map[string]string // idempotency key -> job id
	paused  bool
	closed  bool

	active    int64
	completed int64
	failed    int64

	wake chan struct{}
}

// NewQueue creates an empty in-memory queue
func NewQueue() *Queue {
	return &Queue{
		jobs: make(map[string]*entry),
		keys: make(map[string]string),
		wake: make(chan struct{}, 1),
	}
}

// Enqueue schedules a job, rejecting duplicate idempotency keys
func (q *Queue) Enqueue(ctx context.Context, job webhook.Job, opts webhook.EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", fmt.Errorf("enqueuing job: queue is closed")
	}
	if opts.IdempotencyKey != "" {
		if _, taken := q.keys[opts.IdempotencyKey]; taken {
			return "", fmt.Errorf("enqueuing job with key %s: %w", opts.IdempotencyKey, webhook.ErrDuplicateJob)
		}
	}

	e := &entry{
		id:  uuid.New().String(),
		job: job,
		key: opts.IdempotencyKey,
	}
	if opts.Delay > 0 {
		e.state = webhook.JobDelayed
		e.dueAt = time.Now().Add(opts.Delay)
		q.delayed = append(q.delayed, e)
	} else {
		e.state = webhook.JobQueued
		q.ready = append(q.ready, e)
	}
	q.jobs[e.id] = e
	if e.key != "" {
		q.keys[e.key] = e.id
	}
	q.signal()

	return e.id, nil
}

// Dequeue blocks until a job is available, the context ends, or the queue closes
func (q *Queue) Dequeue(ctx context.Context) (webhook.QueuedJob, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return webhook.QueuedJob{}, fmt.Errorf("dequeuing job: queue is closed")
		}
		q.promoteDue(time.Now())
		if !q.paused && len(q.ready) > 0 {
			e := q.ready[0]
			q.ready = q.ready[1:]
			e.state = webhook.JobActive
			q.active++
			q.mu.Unlock()
			return webhook.QueuedJob{ID: e.id, Job: e.job}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return webhook.QueuedJob{}, ctx.Err()
		case <-q.wake:
		case <-time.After(pollInterval):
		}
	}
}

// Complete records the outcome of a dequeued job
func (q *Queue) Complete(ctx context.Context, jobID string, result webhook.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("completing job %s: %w", jobID, webhook.ErrJobNotFound)
	}
	if e.state == webhook.JobActive {
		q.active--
	}
	if result.Success {
		e.state = webhook.JobCompleted
		q.completed++
	} else {
		e.state = webhook.JobFailed
		q.failed++
	}
	e.result = result
	if e.key != "" {
		delete(q.keys, e.key)
		e.key = ""
	}

	return nil
}

// State returns the lifecycle phase of a job
func (q *Queue) State(ctx context.Context, jobID string) (webhook.JobState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("getting state of job %s: %w", jobID, webhook.ErrJobNotFound)
	}
	return e.state, nil
}

// JobResult returns the stored outcome of a terminal job
func (q *Queue) JobResult(ctx context.Context, jobID string) (webhook.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[jobID]
	if !ok {
		return webhook.Result{}, fmt.Errorf("getting result of job %s: %w", jobID, webhook.ErrJobNotFound)
	}
	if e.state != webhook.JobCompleted && e.state != webhook.JobFailed {
		return webhook.Result{}, fmt.Errorf("getting result of job %s: job is still %s", jobID, e.state)
	}
	return e.result, nil
}

// Counts returns a snapshot of jobs per lifecycle phase
func (q *Queue) Counts(ctx context.Context) (webhook.Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteDue(time.Now())
	return webhook.Counts{
		Queued:    int64(len(q.ready)),
		Delayed:   int64(len(q.delayed)),
		Active:    q.active,
		Completed: q.completed,
		Failed:    q.failed,
	}, nil
}

// Pause stops handing out jobs without affecting in-flight executions
func (q *Queue) Pause(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
	return nil
}

// Resume restarts handing out jobs
func (q *Queue) Resume(ctx context.Context) error {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.signal()
	return nil
}

// Close shuts the queue down; blocked Dequeue calls return an error
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	return nil
}

// promoteDue moves due delayed jobs onto the ready list. Caller holds q.mu.
func (q *Queue) promoteDue(now time.Time) {
	var still []*entry
	for _, e := range q.delayed {
		if e.dueAt.After(now) {
			still = append(still, e)
			continue
		}
		e.state = webhook.JobQueued
		q.ready = append(q.ready, e)
	}
	q.delayed = still
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
