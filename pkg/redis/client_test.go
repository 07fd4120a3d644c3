package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SS_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), config.RedisConfig{Addr: addr, PoolSize: 2, CacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestJSONRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	type entry struct {
		IDs []int64 `json:"ids"`
	}
	require.NoError(t, c.SetJSON(ctx, "test:songs:moon", entry{IDs: []int64{7, 3, 9}}, 0))

	var got entry
	found, err := c.GetJSON(ctx, "test:songs:moon", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []int64{7, 3, 9}, got.IDs)

	n, err := c.FlushByPattern(ctx, "test:songs:*")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	found, err = c.GetJSON(ctx, "test:songs:moon", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
