package typedstore

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_BeforeSet(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	s, driver := newTestStore(t, WithLogger[string](logger))

	err := s.Add(ctx, map[string]any{"a": 1}, "k")
	assert.ErrorIs(t, err, ErrMissingPrecondition)
	assert.Empty(t, driver.sets)
	assert.False(t, s.Has(ctx, "k"))
	assert.True(t, logger.contains("WARN: Add ns:k: nothing stored yet, call Set first"))

	err = s.Pop(ctx, "a", "k")
	assert.ErrorIs(t, err, ErrMissingPrecondition)
	assert.Empty(t, driver.sets)
}

func TestAdd_StoredNull(t *testing.T) {
	ctx := context.Background()
	s, driver := newTestStore(t)
	require.NoError(t, s.Set(ctx, nil, "k"))
	driver.sets = nil

	assert.ErrorIs(t, s.Add(ctx, []any{1}, "k"), ErrMissingPrecondition)
	assert.Empty(t, driver.sets)
}

func TestAdd_Object(t *testing.T) {
	ctx := context.Background()
	for _, layout := range []Layout{LayoutNested, LayoutSpread} {
		t.Run(layout.String(), func(t *testing.T) {
			s, _ := newTestStore(t, WithLayout[string](layout))
			require.NoError(t, s.Set(ctx, map[string]any{"a": 1}, "o"))

			require.NoError(t, s.Add(ctx, map[string]any{"b": 2}, "o"))
			got, err := s.Get(ctx, "o")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, got)

			require.NoError(t, s.Add(ctx, map[string]any{"a": "x"}, "o"))
			got, err = s.Get(ctx, "o")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"a": "x", "b": 2.0}, got)
		})
	}
}

func TestAdd_Map(t *testing.T) {
	ctx := context.Background()
	for _, layout := range []Layout{LayoutNested, LayoutSpread} {
		t.Run(layout.String(), func(t *testing.T) {
			s, _ := newTestStore(t, WithLayout[string](layout))
			require.NoError(t, s.Set(ctx, NewMap(Entry{"a", 1}), "m"))

			require.NoError(t, s.Add(ctx, map[string]any{"a": 2, "b": 3}, "m"))
			got, err := s.Get(ctx, "m")
			require.NoError(t, err)
			want := NewMap(Entry{"a", 2.0}, Entry{"b", 3.0})
			if diff := cmp.Diff(want, got, mapEntries); diff != "" {
				t.Errorf("merged map mismatch (-want +got):\n%s", diff)
			}

			// A Map argument merges in its own order.
			require.NoError(t, s.Add(ctx, NewMap(Entry{"z", true}, Entry{"c", false}), "m"))
			got, err = s.Get(ctx, "m")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "z", "c"}, got.(*Map).Keys())
		})
	}
}

func TestAdd_StructIntoObject(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, map[string]any{"a": 1}, "o"))

	patch := struct {
		B string `json:"b"`
	}{B: "two"}
	require.NoError(t, s.Add(ctx, &patch, "o"))
	require.NoError(t, s.Add(ctx, map[string]int{"c": 3}, "o"))

	got, err := s.Get(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0, "b": "two", "c": 3.0}, got)
}

func TestAdd_Array(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, []any{1, 2, 3}, "arr"))

	require.NoError(t, s.Add(ctx, 4, "arr"))
	require.NoError(t, s.Pop(ctx, 0, "arr"))

	got, err := s.Get(ctx, "arr")
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 3.0, 4.0}, got)

	// Data is appended as one element, even when it is a slice.
	require.NoError(t, s.Add(ctx, []any{5, 6}, "arr"))
	got, err = s.Get(ctx, "arr")
	require.NoError(t, err)
	assert.Equal(t, []any{2.0, 3.0, 4.0, []any{5.0, 6.0}}, got)
}

func TestAdd_Unsupported(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		stored any
		data   any
	}{
		{"string", "text", "more"},
		{"number", 1, 2},
		{"zero number", 0, 2},
		{"false", false, true},
		{"object with scalar", map[string]any{"a": 1}, 5},
		{"map with slice", NewMap(Entry{"a", 1}), []any{1}},
		{"object with nil map", map[string]any{"a": 1}, (*Map)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &mockLogger{}
			s, driver := newTestStore(t, WithLogger[string](logger))
			require.NoError(t, s.Set(ctx, tt.stored, "k"))
			driver.sets = nil

			err := s.Add(ctx, tt.data, "k")
			assert.ErrorIs(t, err, ErrUnsupportedMutation)
			assert.Empty(t, driver.sets)
			assert.True(t, logger.contains("WARN: Add ns:k: unsupported type"))
		})
	}
}

func TestAdd_ParseErrorPropagates(t *testing.T) {
	ctx := context.Background()
	s, driver := newTestStore(t)
	require.NoError(t, driver.Memory.Set(ctx, "ns:k", "{broken"))

	assert.ErrorIs(t, s.Add(ctx, 1, "k"), ErrParse)
	assert.ErrorIs(t, s.Pop(ctx, 0, "k"), ErrParse)
}

func TestPop_Object(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, map[string]any{"a": 1, "b": 2}, "o"))

	require.NoError(t, s.Pop(ctx, "a", "o"))
	got, err := s.Get(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 2.0}, got)

	// Absent fields are a no-op that still rewrites.
	require.NoError(t, s.Pop(ctx, "zzz", "o"))
	got, err = s.Get(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 2.0}, got)
}

func TestPop_Map(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Set(ctx, NewMap(Entry{"1", "one"}, Entry{"x", 1}, Entry{"y", 2}), "m"))

	require.NoError(t, s.Pop(ctx, "x", "m"))
	// Non-string indexes are coerced.
	require.NoError(t, s.Pop(ctx, 1, "m"))

	got, err := s.Get(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, got.(*Map).Keys())
}

func TestPop_Array(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		index any
		want  []any
	}{
		{"first", 0, []any{"b", "c"}},
		{"last", 2, []any{"a", "b"}},
		{"string index", "1", []any{"a", "c"}},
		{"float index", 1.0, []any{"a", "c"}},
		{"negative", -1, []any{"a", "b"}},
		{"negative past start", -10, []any{"b", "c"}},
		{"past end", 3, []any{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, driver := newTestStore(t)
			require.NoError(t, s.Set(ctx, []any{"a", "b", "c"}, "arr"))
			driver.sets = nil

			require.NoError(t, s.Pop(ctx, tt.index, "arr"))
			assert.Len(t, driver.sets, 1)

			got, err := s.Get(ctx, "arr")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPop_Unsupported(t *testing.T) {
	ctx := context.Background()
	logger := &mockLogger{}
	s, _ := newTestStore(t, WithLogger[string](logger))

	require.NoError(t, s.Set(ctx, "text", "s"))
	assert.ErrorIs(t, s.Pop(ctx, 0, "s"), ErrUnsupportedMutation)
	assert.True(t, logger.contains("WARN: Pop ns:s: unsupported type"))

	require.NoError(t, s.Set(ctx, []any{1}, "arr"))
	assert.ErrorIs(t, s.Pop(ctx, "first", "arr"), ErrUnsupportedMutation)
}

func TestMutations_DefaultKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, WithDefaultKey[string]("d"))

	require.NoError(t, s.Set(ctx, []any{}, ""))
	require.NoError(t, s.Add(ctx, "x", ""))
	got, err := s.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, got)
}

func TestSpliceOne(t *testing.T) {
	assert.Equal(t, []any{}, spliceOne([]any{1}, 0))
	assert.Equal(t, []any{}, spliceOne([]any{}, 0))
	assert.Equal(t, []any{2}, spliceOne([]any{1, 2}, -5))
}
