package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"code.byted.org/khicago/typedstore"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "test.db")
	opts = append([]Option{WithNoSync(true), WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "ns:k")
	assert.ErrorIs(t, err, typedstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, "ns:k", "v1"))
	require.NoError(t, s.Set(ctx, "ns:k", "v2"))
	v, err := s.Get(ctx, "ns:k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Delete(ctx, "ns:k"))
	_, err = s.Get(ctx, "ns:k")
	assert.ErrorIs(t, err, typedstore.ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "ns:k"))
}

func TestStore_Keys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, k := range []string{"ns:b", "ns:a", "ns:user:1", "nsx:a", "n:a", "other:a"} {
		require.NoError(t, s.Set(ctx, k, "v"))
	}

	keys, err := s.Keys(ctx, "ns", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns:a", "ns:b", "ns:user:1"}, keys)

	keys, err = s.Keys(ctx, "ns", "user:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns:user:1"}, keys)

	keys, err = s.Keys(ctx, "missing", "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = s.Keys(ctx, "ns", "[")
	assert.ErrorIs(t, err, typedstore.ErrInvalidPattern)
}

func TestStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	first, err := Open(path, WithBucket("prefs"))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "ns:k", "kept"))
	require.NoError(t, first.Close())

	second, err := Open(path, WithBucket("prefs"))
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, path, second.Path())

	v, err := second.Get(ctx, "ns:k")
	require.NoError(t, err)
	assert.Equal(t, "kept", v)

	// A new file starts empty.
	other, err := Open(filepath.Join(t.TempDir(), "other.db"))
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Get(ctx, "ns:k")
	assert.ErrorIs(t, err, typedstore.ErrNotFound)
}

func TestOpen_LockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.db")
	held, err := Open(path)
	require.NoError(t, err)
	defer held.Close()

	_, err = Open(path, WithTimeout(50*time.Millisecond))
	assert.Error(t, err)
}

func TestStore_WithTypedStore(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	s, err := typedstore.New[string](driver, "prefs", typedstore.WithDefaultKey[string]("ui"))
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, typedstore.NewMap(typedstore.Entry{Key: "theme", Value: "dark"}), ""))
	require.NoError(t, s.Add(ctx, map[string]any{"font": 12}, ""))
	require.NoError(t, s.Set(ctx, []any{"a"}, "recent"))

	got, err := s.Get(ctx, "ui")
	require.NoError(t, err)
	m, ok := got.(*typedstore.Map)
	require.True(t, ok)
	assert.Equal(t, []typedstore.Entry{{Key: "theme", Value: "dark"}, {Key: "font", Value: 12.0}}, m.Entries())

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "ui"}, keys)

	require.NoError(t, s.Clear(ctx))
	keys, err = s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
