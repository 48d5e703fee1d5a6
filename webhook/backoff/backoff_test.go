package backoff_test

import (
	"testing"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook/backoff"
	"github.com/stretchr/testify/assert"
)

func TestNextDelay(t *testing.T) {
	t.Run("exponential growth without jitter", func(t *testing.T) {
		s := backoff.NewWithRand(func() float64 { return 0 })

		base := 1000 * time.Millisecond
		assert.Equal(t, 1000*time.Millisecond, s.NextDelay(1, base))
		assert.Equal(t, 2000*time.Millisecond, s.NextDelay(2, base))
		assert.Equal(t, 4000*time.Millisecond, s.NextDelay(3, base))
		assert.Equal(t, 8000*time.Millisecond, s.NextDelay(4, base))
	})

	t.Run("jitter stays within 10 percent of the exponential", func(t *testing.T) {
		s := backoff.New()
		base := 1000 * time.Millisecond

		for i := 0; i < 100; i++ {
			d := s.NextDelay(1, base)
			assert.GreaterOrEqual(t, d, 1000*time.Millisecond)
			assert.Less(t, d, 1100*time.Millisecond)
		}
	})

	t.Run("monotonically non-decreasing in attempt ignoring jitter", func(t *testing.T) {
		s := backoff.NewWithRand(func() float64 { return 0 })
		base := 500 * time.Millisecond

		prev := time.Duration(0)
		for attempt := 1; attempt <= 20; attempt++ {
			d := s.NextDelay(attempt, base)
			assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
			prev = d
		}
	})

	t.Run("never exceeds the five minute cap", func(t *testing.T) {
		s := backoff.NewWithRand(func() float64 { return 0.999999 })

		for attempt := 1; attempt <= 64; attempt++ {
			d := s.NextDelay(attempt, 10*time.Second)
			assert.LessOrEqual(t, d, backoff.MaxDelay)
		}
	})

	t.Run("attempt below one is treated as the first attempt", func(t *testing.T) {
		s := backoff.NewWithRand(func() float64 { return 0 })
		assert.Equal(t, time.Second, s.NextDelay(0, time.Second))
		assert.Equal(t, time.Second, s.NextDelay(-3, time.Second))
	})

	t.Run("zero base yields zero delay", func(t *testing.T) {
		s := backoff.New()
		assert.Equal(t, time.Duration(0), s.NextDelay(3, 0))
	})
}
