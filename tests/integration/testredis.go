//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImage = "redis:7-alpine"

var (
	sharedRedis    *tcredis.RedisContainer
	sharedRedisMu  sync.Mutex
	sharedRedisURL string
)

// NewTestRedis returns a client on the package-wide Redis container with
// an empty database. The client is closed when the test ends.
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()

	ctx := context.Background()
	if sharedRedis == nil {
		container, err := tcredis.Run(ctx, redisImage)
		require.NoError(t, err, "start Redis container")
		uri, err := container.ConnectionString(ctx)
		require.NoError(t, err)
		sharedRedis = container
		sharedRedisURL = uri
	}

	opts, err := redis.ParseURL(sharedRedisURL)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// CleanupSharedRedis terminates the shared Redis container; call it from TestMain
func CleanupSharedRedis() {
	sharedRedisMu.Lock()
	defer sharedRedisMu.Unlock()
	if sharedRedis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = sharedRedis.Terminate(ctx)
	sharedRedis = nil
	sharedRedisURL = ""
}
