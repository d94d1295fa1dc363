package apq

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRegistry(t *testing.T) *RedisRegistry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRegistryWithClient(client)
}

func TestRedisRegistry_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRedisRegistry(t)

	const query = `query Dashboard { courses { id title } }`
	hash := HashQuery(query)

	_, found, err := r.Lookup(ctx, hash)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.Register(ctx, hash, query))

	text, found, err := r.Lookup(ctx, hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, query, text)

	ok, err := r.IsRegistered(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRegistry_Overwrite(t *testing.T) {
	ctx := context.Background()
	r := newTestRedisRegistry(t)

	require.NoError(t, r.Register(ctx, "h1", "query A { a }"))
	require.NoError(t, r.Register(ctx, "h1", "query B { b }"))

	text, found, err := r.Lookup(ctx, "h1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "query B { b }", text)
}

func TestRedisRegistry_Readiness(t *testing.T) {
	r := newTestRedisRegistry(t)
	assert.NoError(t, r.CheckReadiness(context.Background()))
}
