package typedstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name  string   `json:"name"`
	Age   int      `json:"age"`
	Roles []string `json:"roles"`
}

func TestGetAs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, map[string]any{"name": "ada", "age": 36, "roles": []string{"admin"}}, "p"))
	p, err := GetAs[profile](ctx, s, "p")
	require.NoError(t, err)
	assert.Equal(t, profile{Name: "ada", Age: 36, Roles: []string{"admin"}}, p)

	// Structs are stored opaque and read back through the same path.
	require.NoError(t, s.Set(ctx, profile{Name: "bob", Age: 7}, "q"))
	q, err := GetAs[profile](ctx, s, "q")
	require.NoError(t, err)
	assert.Equal(t, profile{Name: "bob", Age: 7}, q)

	n, err := GetAs[int](ctx, s, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, n)
}

func TestGetAs_OrderedMap(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, NewMap(Entry{"b", 1}, Entry{"a", 2}), "m"))

	m, err := GetAs[map[string]int](ctx, s, "m")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, m)
}

func TestGetAs_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, "text", "s"))

	_, err := GetAs[int](ctx, s, "s")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ns:s")
}
