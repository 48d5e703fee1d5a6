//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	wbredis "github.com/marcelsud/webhook-outbox/webhook/redis"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedis starts a throwaway Redis container and returns its address
func setupRedis(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}

	time.Sleep(1 * time.Second)
	return addr
}

func newTestStore(t *testing.T, ctx context.Context) *wbredis.Store {
	t.Helper()
	store, err := wbredis.NewStore(setupRedis(t, ctx), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func newTestQueue(t *testing.T, ctx context.Context) *wbredis.Queue {
	t.Helper()
	queue, err := wbredis.NewQueue(setupRedis(t, ctx), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close(context.Background()) })
	return queue
}
