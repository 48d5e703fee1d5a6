package backoff

import (
	"math"
	"math/rand"
	"time"
)

/* Exponential backoff with jitter for delivery retries
 *
 *   exponential = base * 2^(attempt-1)
 *   jitter      = random(0, 0.1 * exponential)
 *   delay       = min(exponential + jitter, MaxDelay)
 *
 * Jitter spreads out retries so many deliveries failing at once do not
 * hammer the endpoint again at the same instant
 */

// MaxDelay is the hard cap on a computed retry delay.
const MaxDelay = 5 * time.Minute

// Scheduler computes retry delays. The zero value is not usable; use New.
type Scheduler struct {
	rand func() float64 // returns a value in [0, 1)
}

// New creates a Scheduler drawing jitter from math/rand.
func New() *Scheduler {
	return &Scheduler{rand: rand.Float64}
}

// NewWithRand creates a Scheduler with an injected jitter source, for tests.
func NewWithRand(r func() float64) *Scheduler {
	return &Scheduler{rand: r}
}

// NextDelay returns the delay before the attempt-th try, 1-indexed.
// Pure apart from the jitter draw.
func (s *Scheduler) NextDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}

	exponential := float64(base) * math.Pow(2, float64(attempt-1))
	jitter := s.rand() * 0.1 * exponential

	delay := exponential + jitter
	if delay > float64(MaxDelay) {
		return MaxDelay
	}
	return time.Duration(delay)
}
