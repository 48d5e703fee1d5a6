package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

/* Engine-wide bound on outbound HTTP dispatches per time window
 * Workers wait here before pulling a job, so a delivery that cannot run
 * within the window is simply not dequeued yet - never dropped
 */

// Limiter bounds dispatch operations across all workers.
type Limiter struct {
	limiter *rate.Limiter
}

/* New creates a limiter allowing calls dispatches per window
 * calls <= 0 disables limiting
 */
func New(calls int, window time.Duration) *Limiter {
	if calls <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(calls)), calls),
	}
}

// Wait blocks until a dispatch slot is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a dispatch slot is available right now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
