package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowMemoryStore(t *testing.T) {
	store, err := NewStore(nil, "mem")
	require.NoError(t, err)
	l := FixedWindow{Store: store}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, reset, err := l.Allow(ctx, "client", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 3-(i+1), remaining)
		require.True(t, reset.After(time.Now()))
	}
	allowed, remaining, _, err := l.Allow(ctx, "client", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	allowed, _, _, err = l.Allow(ctx, "someone-else", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestFixedWindowRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, "shared")
	require.NoError(t, err)
	l := FixedWindow{Store: store}

	allowed, _, _, err := l.Allow(context.Background(), "client", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _, err = l.Allow(context.Background(), "client", time.Minute, 1)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestFixedWindowDisabled(t *testing.T) {
	allowed, remaining, _, err := FixedWindow{}.Allow(context.Background(), "k", time.Second, 5)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 5, remaining)
}
