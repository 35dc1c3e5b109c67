package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoped_IsolatesDevices(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := Scoped(mem, "device-a")
	b := Scoped(mem, "device-b")

	require.NoError(t, a.Set(ctx, "guestCart", "[1]"))

	v, ok, err := a.Get(ctx, "guestCart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[1]", v)

	_, ok, err = b.Get(ctx, "guestCart")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Remove(ctx, "guestCart"))
	_, ok, err = a.Get(ctx, "guestCart")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_RemoveMissingKey(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.Remove(context.Background(), "nope"))
}
