package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("CS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CS_TEST_REDIS_ADDR not set, skipping redis integration test")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSetFlush(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "cstest:missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.Set(ctx, "cstest:a", []byte("1"), time.Minute))
	v, found, err := c.Get(ctx, "cstest:a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", v)

	n, err := c.FlushByPattern(ctx, "cstest:*")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))
}
