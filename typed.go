package typedstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetAs reads key and decodes the reconstructed value into T through its JSON form.
// Missing keys return ErrNotFound and the zero T.
func GetAs[T any, TKey ~string](ctx context.Context, s Store[TKey], key TKey) (T, error) {
	var zero T
	v, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("typedstore: marshal %s: %w", s.Key(key), err)
	}
	var out T
	if err := json.Unmarshal(buf, &out); err != nil {
		return zero, fmt.Errorf("typedstore: decode %s into %T: %w", s.Key(key), out, err)
	}
	return out, nil
}
