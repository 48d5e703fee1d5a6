package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/marcelsud/webhook-outbox/webhook/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	t.Run("allows a full window burst then throttles", func(t *testing.T) {
		l := ratelimit.New(5, time.Minute)

		for i := 0; i < 5; i++ {
			assert.True(t, l.Allow(), "call %d should be within the window", i+1)
		}
		assert.False(t, l.Allow(), "sixth call should exceed the window")
	})

	t.Run("unlimited when calls is zero", func(t *testing.T) {
		l := ratelimit.New(0, time.Minute)

		for i := 0; i < 1000; i++ {
			assert.True(t, l.Allow())
		}
	})

	t.Run("wait honors context cancellation", func(t *testing.T) {
		l := ratelimit.New(1, time.Hour)
		require.NoError(t, l.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := l.Wait(ctx)
		require.Error(t, err)
	})
}
