package typedstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/buger/jsonparser"
)

// Reserved envelope fields. Changing any of them makes previously stored data unreadable.
const (
	FieldType     = "__type"
	FieldValue    = "__value"
	FieldReserved = "__reserved"
)

// Type tags written to FieldType.
const (
	TagMap     = "map"
	TagObject  = "object"
	TagArray   = "array"
	TagString  = "string"
	TagNumber  = "number"
	TagBoolean = "boolean"
	TagNull    = "null"
	TagOpaque  = "opaque"
)

var reservedFields = []string{FieldType, FieldValue, FieldReserved}

// Kind is the closed set of value variants the codec distinguishes.
type Kind int

const (
	KindPrimitive Kind = iota
	KindMap
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "primitive"
	}
}

// Layout selects where map and object payloads go inside the envelope.
type Layout int

const (
	// LayoutNested keeps every payload under FieldValue.
	LayoutNested Layout = iota
	// LayoutSpread merges map and object entries into the envelope itself.
	// Entries named like a reserved field are lost.
	LayoutSpread
)

func (l Layout) String() string {
	if l == LayoutSpread {
		return "spread"
	}
	return "nested"
}

// ParseLayout maps "nested" (or "") and "spread" to a Layout.
func ParseLayout(name string) (Layout, error) {
	switch name {
	case "", "nested":
		return LayoutNested, nil
	case "spread":
		return LayoutSpread, nil
	default:
		return 0, fmt.Errorf("typedstore: unknown layout %q", name)
	}
}

// Classify returns the variant of v and the type tag it is stored under.
// Only *Map and exactly map[string]any count as keyed containers; named map
// types and structs fall through to the opaque primitive branch. Nil maps and
// slices are stored as null.
func Classify(v any) (Kind, string) {
	switch x := v.(type) {
	case nil:
		return KindPrimitive, TagNull
	case *Map:
		if x == nil {
			return KindPrimitive, TagNull
		}
		return KindMap, TagMap
	case map[string]any:
		if x == nil {
			return KindPrimitive, TagNull
		}
		return KindObject, TagObject
	case []byte:
		return KindPrimitive, TagOpaque
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return KindPrimitive, TagNull
		}
		return KindArray, TagArray
	case reflect.Array:
		return KindArray, TagArray
	case reflect.String:
		return KindPrimitive, TagString
	case reflect.Bool:
		return KindPrimitive, TagBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return KindPrimitive, TagNumber
	case reflect.Pointer, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return KindPrimitive, TagNull
		}
	}
	return KindPrimitive, TagOpaque
}

// Codec converts values to and from self-describing JSON envelopes.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	layout Layout
}

// NewCodec returns a codec writing the given layout. Decoding accepts both layouts.
func NewCodec(layout Layout) *Codec {
	return &Codec{layout: layout}
}

// Layout returns the layout used for encoding.
func (c *Codec) Layout() Layout { return c.layout }

// Envelope wraps v without serializing it.
func (c *Codec) Envelope(v any) *Map {
	kind, tag := Classify(v)
	env := NewMap()
	env.Set(FieldType, tag)

	switch {
	case kind == KindMap && c.layout == LayoutSpread:
		v.(*Map).Range(func(k string, val any) bool {
			if !isReserved(k) {
				env.Set(k, val)
			}
			return true
		})
	case kind == KindObject && c.layout == LayoutSpread:
		for _, k := range sortedKeys(v.(map[string]any)) {
			if !isReserved(k) {
				env.Set(k, v.(map[string]any)[k])
			}
		}
	default:
		env.Set(FieldValue, v)
	}

	env.Set(FieldReserved, append([]string(nil), reservedFields...))
	return env
}

// Encode wraps v and serializes the envelope.
func (c *Codec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(c.Envelope(v))
	if err != nil {
		return nil, fmt.Errorf("typedstore: encode %T: %w", v, err)
	}
	return data, nil
}

// DecodeRaw parses data without unwrapping the envelope.
// Top-level objects come back as *Map so field order stays visible.
func (c *Codec) DecodeRaw(data []byte) (any, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrParse)
	}
	if data[0] != '{' {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return v, nil
	}
	env, err := parseObject(data)
	if err != nil {
		return nil, err
	}
	// A nested map payload is re-read as a Map; a plain decode would lose its order.
	if tag, _ := env.Get(FieldType); tag == TagMap {
		if raw, dataType, _, err := jsonparser.Get(data, FieldValue); err == nil && dataType == jsonparser.Object {
			m, err := parseObject(raw)
			if err != nil {
				return nil, err
			}
			env.Set(FieldValue, m)
		}
	}
	return env, nil
}

// Decode parses data and reconstructs the original value.
func (c *Codec) Decode(data []byte) (any, error) {
	raw, err := c.DecodeRaw(data)
	if err != nil {
		return nil, err
	}
	env, ok := raw.(*Map)
	if !ok {
		return nil, nil
	}
	return unwrap(env), nil
}

// unwrap takes a map or object envelope as nested only when FieldValue holds an
// object. Spread envelopes written before reserved keys were filtered may carry
// a user field named FieldValue; that field is dropped with the reserved ones.
func unwrap(env *Map) any {
	tag, _ := env.Get(FieldType)
	payload, _ := env.Get(FieldValue)

	switch tag {
	case TagMap:
		switch p := payload.(type) {
		case *Map:
			return p
		case map[string]any:
			return mapFromObject(p)
		}
		StripReserved(env)
		return env
	case TagObject:
		if obj, ok := payload.(map[string]any); ok {
			return obj
		}
		StripReserved(env)
		return env.Object()
	default:
		return payload
	}
}

// StripReserved removes the reserved fields listed in the envelope's
// directory from env in place. Values other than *Map are left untouched.
func StripReserved(v any) any {
	env, ok := v.(*Map)
	if !ok || env == nil {
		return v
	}
	names := reservedFields
	if dir, ok := env.Get(FieldReserved); ok {
		if list, ok := dir.([]any); ok {
			names = names[:0:0]
			for _, n := range list {
				if s, ok := n.(string); ok {
					names = append(names, s)
				}
			}
		}
	}
	for _, n := range names {
		env.Delete(n)
	}
	env.Delete(FieldReserved)
	return env
}

func isReserved(key string) bool {
	for _, f := range reservedFields {
		if f == key {
			return true
		}
	}
	return false
}

func mapFromObject(obj map[string]any) *Map {
	m := NewMap()
	for _, k := range sortedKeys(obj) {
		m.Set(k, obj[k])
	}
	return m
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
