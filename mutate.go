package typedstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// Add merges data into the stored value or appends it, then writes the result back.
// Objects and maps take data's fields, last write wins; arrays get data as one new element.
// It is a read followed by a write and is not atomic.
func (c *client[TKey]) Add(ctx context.Context, data any, key TKey) error {
	current, err := c.current(ctx, "Add", key)
	if err != nil {
		return err
	}

	var next any
	switch cur := current.(type) {
	case map[string]any:
		entries, err := entriesOf(data)
		if err != nil {
			return c.unsupported(ctx, "Add", key, err)
		}
		for _, e := range entries {
			cur[e.Key] = e.Value
		}
		next = cur
	case *Map:
		entries, err := entriesOf(data)
		if err != nil {
			return c.unsupported(ctx, "Add", key, err)
		}
		for _, e := range entries {
			cur.Set(e.Key, e.Value)
		}
		next = cur
	case []any:
		next = append(cur, data)
	default:
		return c.unsupported(ctx, "Add", key, fmt.Errorf("stored %s", describe(current)))
	}
	return c.Set(ctx, next, key)
}

// Pop removes the field or entry named index from an object or map, or the
// element at position index from an array, then writes the result back.
func (c *client[TKey]) Pop(ctx context.Context, index any, key TKey) error {
	current, err := c.current(ctx, "Pop", key)
	if err != nil {
		return err
	}

	var next any
	switch cur := current.(type) {
	case map[string]any:
		name, err := cast.ToStringE(index)
		if err != nil {
			return c.unsupported(ctx, "Pop", key, err)
		}
		delete(cur, name)
		next = cur
	case *Map:
		name, err := cast.ToStringE(index)
		if err != nil {
			return c.unsupported(ctx, "Pop", key, err)
		}
		cur.Delete(name)
		next = cur
	case []any:
		i, err := cast.ToIntE(index)
		if err != nil {
			return c.unsupported(ctx, "Pop", key, err)
		}
		next = spliceOne(cur, i)
	default:
		return c.unsupported(ctx, "Pop", key, fmt.Errorf("stored %s", describe(current)))
	}
	return c.Set(ctx, next, key)
}

// current reads the value a mutation starts from.
func (c *client[TKey]) current(ctx context.Context, op string, key TKey) (any, error) {
	v, err := c.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if v == nil {
		k := c.resolve(ctx, key, true)
		c.logf("warn", ctx, "%s %s: nothing stored yet, call Set first", op, k)
		return nil, fmt.Errorf("%w: %s", ErrMissingPrecondition, k)
	}
	return v, nil
}

func (c *client[TKey]) unsupported(ctx context.Context, op string, key TKey, cause error) error {
	k := c.resolve(ctx, key, false)
	c.logf("warn", ctx, "%s %s: unsupported type: %v", op, k, cause)
	return fmt.Errorf("%w: %s %s: %v", ErrUnsupportedMutation, op, k, cause)
}

// spliceOne removes the element at i. Negative indexes count from the end;
// indexes past the end remove nothing.
func spliceOne(s []any, i int) []any {
	if i < 0 {
		i += len(s)
		if i < 0 {
			i = 0
		}
	}
	if i >= len(s) {
		return s
	}
	return append(s[:i], s[i+1:]...)
}

// entriesOf lists the fields of a keyed value: a *Map in its order, anything
// else sorted by key. Structs contribute the fields of their JSON form.
func entriesOf(data any) ([]Entry, error) {
	switch d := data.(type) {
	case *Map:
		if d == nil {
			return nil, fmt.Errorf("cannot merge nil map")
		}
		return d.Entries(), nil
	case map[string]any:
		return entriesFromObject(d), nil
	}

	rv := reflect.ValueOf(data)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		obj := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[iter.Key().String()] = iter.Value().Interface()
		}
		return entriesFromObject(obj), nil
	case rv.Kind() == reflect.Struct:
		buf, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, err
		}
		var obj map[string]any
		if err := json.Unmarshal(buf, &obj); err != nil {
			return nil, err
		}
		return entriesFromObject(obj), nil
	}
	return nil, fmt.Errorf("cannot merge %s", describe(data))
}

func entriesFromObject(obj map[string]any) []Entry {
	out := make([]Entry, 0, len(obj))
	for _, k := range sortedKeys(obj) {
		out = append(out, Entry{Key: k, Value: obj[k]})
	}
	return out
}

func describe(v any) string {
	_, tag := Classify(v)
	return fmt.Sprintf("%s (%T)", tag, v)
}
