package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySetsAndClearsKeys(t *testing.T) {
	mr := miniredis.RunT(t)

	reg := NewRegistry(newClient(mr), time.Minute)
	ctx := context.Background()

	connID, err := reg.Register(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ws:conn:"+connID))

	n, err := reg.Online(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, reg.Unregister(ctx, connID))
	assert.False(t, mr.Exists("ws:conn:"+connID))
}

func TestRegistryLeaseExpires(t *testing.T) {
	mr := miniredis.RunT(t)

	reg := NewRegistry(newClient(mr), time.Minute)
	ctx := context.Background()
	stale, err := reg.Register(ctx, "u1")
	require.NoError(t, err)
	live, err := reg.Register(ctx, "u1")
	require.NoError(t, err)

	mr.FastForward(50 * time.Second)
	require.NoError(t, reg.Touch(ctx, live))
	mr.FastForward(30 * time.Second)

	assert.False(t, mr.Exists("ws:conn:"+stale), "stale connection expires")
	n, err := reg.Online(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
