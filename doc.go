// Package typedstore persists typed values in a string-only key-value store.
//
// # Overview
//
// Backing stores such as page-scoped web storage hold nothing but strings.
// typedstore wraps every value in a self-describing JSON envelope so that
// objects, ordered maps, arrays and primitives come back with their shape
// intact. It separates the namespaced client (Store) from the storage
// backend (Driver).
//
// Keys are stored as "name:key". The zero key selects the default key.
//
// # Quick Start
//
//	store, err := typedstore.New[string](typedstore.NewMemory(), "prefs",
//	    typedstore.WithDefaultKey[string]("ui"))
//	ctx := context.Background()
//
//	store.Set(ctx, map[string]any{"theme": "dark"}, "")
//	store.Add(ctx, map[string]any{"font": 14}, "")   // {"font":14,"theme":"dark"}
//	v, _ := store.Get(ctx, "")                      // map[string]any
//
// # Envelopes
//
// A stored value looks like
//
//	{"__type":"array","__value":[1,2,3],"__reserved":["__type","__value","__reserved"]}
//
// The type tag is one of "map", "object", "array", "string", "number",
// "boolean", "null" or "opaque". Only *Map and exactly map[string]any are
// treated as keyed containers; named map types and structs are stored
// opaquely and read back as plain JSON.
//
// LayoutSpread reproduces the older wire shape where map and object entries
// sit next to the reserved fields. Entries named like a reserved field are
// lost in that layout. Reads accept both layouts.
//
// # Mutations
//
// Add and Pop edit the stored value in place: objects and maps merge or
// drop fields, arrays append one element or remove one by index. Both read
// then write and are not atomic across processes sharing a driver.
//
// # Transformers
//
// A Transformer rewrites the serialized string on its way to and from the
// driver, e.g. compression or encryption (see package transform).
//
// # Error Handling
//
//	_, err := store.Get(ctx, "missing")
//	if errors.Is(err, typedstore.ErrNotFound) {
//	    // Handle missing key
//	}
//
// Malformed stored data yields ErrParse, never a panic. Mutations on an empty
// key yield ErrMissingPrecondition and on unsupported values
// ErrUnsupportedMutation; neither writes anything.
package typedstore
