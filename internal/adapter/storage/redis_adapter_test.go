package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisFixture(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisAdapter(client), mr
}

func TestDecrementStock_MissingKeyAllows(t *testing.T) {
	adapter, mr := newRedisFixture(t)

	ok, err := adapter.DecrementStock(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("stock:1"))
}

func TestDecrementStock_SufficientAndExhausted(t *testing.T) {
	adapter, mr := newRedisFixture(t)
	ctx := context.Background()
	require.NoError(t, adapter.SetStock(ctx, 1, 5))

	ok, err := adapter.DecrementStock(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	n, found, err := adapter.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, n)

	// 2 left, asking for 3: refused without touching the counter.
	ok, err = adapter.DecrementStock(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	mr.CheckGet(t, "stock:1", "2")
}

func TestIncrementStock_OnlyRestoresExistingCounters(t *testing.T) {
	adapter, mr := newRedisFixture(t)
	ctx := context.Background()

	// Missing key stays missing; restoring must not materialize a value.
	require.NoError(t, adapter.IncrementStock(ctx, 1, 3))
	assert.False(t, mr.Exists("stock:1"))

	require.NoError(t, adapter.SetStock(ctx, 1, 2))
	require.NoError(t, adapter.IncrementStock(ctx, 1, 3))
	mr.CheckGet(t, "stock:1", "5")
}

func TestGetStock_MissingKey(t *testing.T) {
	adapter, _ := newRedisFixture(t)

	_, found, err := adapter.GetStock(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetIdempotency_FirstClaimWins(t *testing.T) {
	adapter, _ := newRedisFixture(t)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "order:req:abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.SetIdempotency(ctx, "order:req:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, adapter.ReleaseIdempotency(ctx, "order:req:abc"))

	ok, err = adapter.SetIdempotency(ctx, "order:req:abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyKeyExpires(t *testing.T) {
	adapter, mr := newRedisFixture(t)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "order:req:abc")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(idempotencyKeyTTL)

	ok, err = adapter.SetIdempotency(ctx, "order:req:abc")
	require.NoError(t, err)
	assert.True(t, ok)
}
