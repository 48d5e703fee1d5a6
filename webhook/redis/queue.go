package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Queue
 * A list carries ready jobs (LPUSH/BRPOP), a sorted set holds delayed jobs
 * scored by due time, and SETNX on the idempotency key rejects duplicates
 */

const (
	readyKey   = "jobs:ready"
	delayedKey = "jobs:delayed"
	jobPrefix  = "jobs:job"  // Hash naming: jobs:job:{job_id}
	dedupeKey  = "jobs:key"  // String naming: jobs:key:{idempotency_key}
	pausedKey  = "jobs:paused"
	activeKey  = "jobs:active"
	doneKey    = "jobs:completed"
	failedKey  = "jobs:failed"

	// dedupeTTL bounds how long an idempotency key blocks duplicates
	dedupeTTL = 24 * time.Hour

	// jobTTL keeps terminal job hashes around for state polling before expiry
	jobTTL = 24 * time.Hour

	// blockTimeout keeps BRPOP responsive to pause and shutdown
	blockTimeout = 1 * time.Second
)

type Queue struct {
	client *redis.Client
}

// NewQueue creates a Redis queue and verifies the connection
func NewQueue(addr, password string, db int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// Enqueue schedules a job, rejecting duplicate idempotency keys
func (q *Queue) Enqueue(ctx context.Context, job webhook.Job, opts webhook.EnqueueOptions) (string, error) {
	jobID := uuid.New().String()

	if opts.IdempotencyKey != "" {
		key := fmt.Sprintf("%s:%s", dedupeKey, opts.IdempotencyKey)
		ok, err := q.client.SetNX(ctx, key, jobID, dedupeTTL).Result()
		if err != nil {
			return "", fmt.Errorf("claiming idempotency key: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("enqueuing job with key %s: %w", opts.IdempotencyKey, webhook.ErrDuplicateJob)
		}
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshaling job: %w", err)
	}

	state := webhook.JobQueued
	if opts.Delay > 0 {
		state = webhook.JobDelayed
	}

	jobKey := fmt.Sprintf("%s:%s", jobPrefix, jobID)
	err = q.client.HSet(ctx, jobKey, map[string]interface{}{
		"data":  string(data),
		"state": string(state),
		"key":   opts.IdempotencyKey,
	}).Err()
	if err != nil {
		return "", fmt.Errorf("storing job: %w", err)
	}

	if opts.Delay > 0 {
		due := float64(time.Now().Add(opts.Delay).UnixMilli())
		if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: jobID}).Err(); err != nil {
			return "", fmt.Errorf("scheduling delayed job: %w", err)
		}
	} else {
		if err := q.client.LPush(ctx, readyKey, jobID).Err(); err != nil {
			return "", fmt.Errorf("pushing job: %w", err)
		}
	}

	return jobID, nil
}

// Dequeue blocks until a job is available or the context is cancelled
func (q *Queue) Dequeue(ctx context.Context) (webhook.QueuedJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return webhook.QueuedJob{}, err
		}

		paused, err := q.client.Get(ctx, pausedKey).Result()
		if err != nil && err != redis.Nil {
			return webhook.QueuedJob{}, fmt.Errorf("checking pause flag: %w", err)
		}
		if paused == "1" {
			select {
			case <-ctx.Done():
				return webhook.QueuedJob{}, ctx.Err()
			case <-time.After(blockTimeout):
			}
			continue
		}

		if err := q.promoteDue(ctx); err != nil {
			return webhook.QueuedJob{}, err
		}

		res, err := q.client.BRPop(ctx, blockTimeout, readyKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return webhook.QueuedJob{}, ctx.Err()
			}
			return webhook.QueuedJob{}, fmt.Errorf("popping job: %w", err)
		}
		if len(res) != 2 {
			continue
		}
		jobID := res[1]

		jobKey := fmt.Sprintf("%s:%s", jobPrefix, jobID)
		data, err := q.client.HGet(ctx, jobKey, "data").Result()
		if err == redis.Nil {
			// Job hash expired between push and pop
			continue
		}
		if err != nil {
			return webhook.QueuedJob{}, fmt.Errorf("loading job %s: %w", jobID, err)
		}

		var job webhook.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return webhook.QueuedJob{}, fmt.Errorf("unmarshaling job %s: %w", jobID, err)
		}

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, jobKey, "state", string(webhook.JobActive))
		pipe.Incr(ctx, activeKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return webhook.QueuedJob{}, fmt.Errorf("activating job %s: %w", jobID, err)
		}

		return webhook.QueuedJob{ID: jobID, Job: job}, nil
	}
}

// Complete records the outcome of a dequeued job
func (q *Queue) Complete(ctx context.Context, jobID string, result webhook.Result) error {
	jobKey := fmt.Sprintf("%s:%s", jobPrefix, jobID)

	idemKey, err := q.client.HGet(ctx, jobKey, "key").Result()
	if err == redis.Nil {
		return fmt.Errorf("completing job %s: %w", jobID, webhook.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	state := webhook.JobFailed
	counter := failedKey
	if result.Success {
		state = webhook.JobCompleted
		counter = doneKey
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey, map[string]interface{}{
		"state":  string(state),
		"result": string(resultJSON),
	})
	pipe.Decr(ctx, activeKey)
	pipe.Incr(ctx, counter)
	pipe.Expire(ctx, jobKey, jobTTL)
	if idemKey != "" {
		pipe.Del(ctx, fmt.Sprintf("%s:%s", dedupeKey, idemKey))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("completing job %s: %w", jobID, err)
	}

	return nil
}

// State returns the lifecycle phase of a job
func (q *Queue) State(ctx context.Context, jobID string) (webhook.JobState, error) {
	jobKey := fmt.Sprintf("%s:%s", jobPrefix, jobID)

	state, err := q.client.HGet(ctx, jobKey, "state").Result()
	if err == redis.Nil {
		return "", fmt.Errorf("getting state of job %s: %w", jobID, webhook.ErrJobNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting state of job %s: %w", jobID, err)
	}

	return webhook.JobState(state), nil
}

// JobResult returns the stored outcome of a terminal job
func (q *Queue) JobResult(ctx context.Context, jobID string) (webhook.Result, error) {
	jobKey := fmt.Sprintf("%s:%s", jobPrefix, jobID)

	raw, err := q.client.HGet(ctx, jobKey, "result").Result()
	if err == redis.Nil {
		return webhook.Result{}, fmt.Errorf("getting result of job %s: %w", jobID, webhook.ErrJobNotFound)
	}
	if err != nil {
		return webhook.Result{}, fmt.Errorf("getting result of job %s: %w", jobID, err)
	}
	if raw == "" {
		return webhook.Result{}, fmt.Errorf("getting result of job %s: job is not terminal", jobID)
	}

	var result webhook.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return webhook.Result{}, fmt.Errorf("unmarshaling result of job %s: %w", jobID, err)
	}

	return result, nil
}

// Counts returns a snapshot of jobs per lifecycle phase
func (q *Queue) Counts(ctx context.Context) (webhook.Counts, error) {
	pipe := q.client.Pipeline()
	queued := pipe.LLen(ctx, readyKey)
	delayed := pipe.ZCard(ctx, delayedKey)
	active := pipe.Get(ctx, activeKey)
	completed := pipe.Get(ctx, doneKey)
	failed := pipe.Get(ctx, failedKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return webhook.Counts{}, fmt.Errorf("counting jobs: %w", err)
	}

	return webhook.Counts{
		Queued:    queued.Val(),
		Delayed:   delayed.Val(),
		Active:    counterVal(active),
		Completed: counterVal(completed),
		Failed:    counterVal(failed),
	}, nil
}

// Pause stops handing out jobs; in-flight executions are unaffected
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.client.Set(ctx, pausedKey, "1", 0).Err(); err != nil {
		return fmt.Errorf("pausing queue: %w", err)
	}
	return nil
}

// Resume restarts handing out jobs
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.client.Del(ctx, pausedKey).Err(); err != nil {
		return fmt.Errorf("resuming queue: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (q *Queue) Close(ctx context.Context) error {
	return q.client.Close()
}

/* promoteDue moves due delayed jobs onto the ready list
 * Several workers promote concurrently, so each id is claimed with ZRem
 * first; only the worker whose ZRem removed the member pushes it, which
 * keeps a job from landing on the ready list twice
 */
func (q *Queue) promoteDue(ctx context.Context) error {
	now := time.Now().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("fetching due jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, delayedKey, id).Result()
		if err != nil {
			return fmt.Errorf("claiming due job %s: %w", id, err)
		}
		if removed == 0 {
			// Another worker claimed this id between the range read and now
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, fmt.Sprintf("%s:%s", jobPrefix, id), "state", string(webhook.JobQueued))
		pipe.LPush(ctx, readyKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("promoting due job %s: %w", id, err)
		}
	}

	return nil
}

func counterVal(cmd *redis.StringCmd) int64 {
	v, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return v
}
