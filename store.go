package typedstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrNotFound            = errors.New("typedstore: not found")
	ErrParse               = errors.New("typedstore: parse failed")
	ErrTransform           = errors.New("typedstore: transform failed")
	ErrInvalidDriver       = errors.New("typedstore: invalid driver")
	ErrInvalidPattern      = errors.New("typedstore: invalid pattern")
	ErrQuotaExceeded       = errors.New("typedstore: quota exceeded")
	ErrMissingPrecondition = errors.New("typedstore: no value stored, call Set first")
	ErrUnsupportedMutation = errors.New("typedstore: unsupported mutation")
)

// Driver is the string-only backing store.
// Implementations must be thread-safe.
type Driver interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	// Keys lists full keys under "prefix:" whose remainder matches pattern.
	Keys(ctx context.Context, prefix, pattern string) ([]string, error)
}

// Option customizes Store behavior.
type Option[TKey ~string] func(*client[TKey])

// WithDefaultKey sets the key used when a call passes the zero key.
func WithDefaultKey[TKey ~string](key TKey) Option[TKey] {
	return func(c *client[TKey]) {
		c.defaultKey = key
	}
}

// WithLogger specifies a logger for warnings and failures.
// If not provided, a no-op logger is used.
func WithLogger[TKey ~string](logger Logger) Option[TKey] {
	return func(c *client[TKey]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLogTag sets a tag prefix for all log messages.
func WithLogTag[TKey ~string](tag string) Option[TKey] {
	return func(c *client[TKey]) {
		c.logTag = tag
	}
}

// WithLayout selects the envelope layout used for writes. Reads accept both.
func WithLayout[TKey ~string](layout Layout) Option[TKey] {
	return func(c *client[TKey]) {
		c.codec = NewCodec(layout)
	}
}

// WithTransformer applies t to every serialized value. Repeated use chains transformers in order.
func WithTransformer[TKey ~string](t Transformer) Option[TKey] {
	return func(c *client[TKey]) {
		if t != nil {
			c.transformers = append(c.transformers, t)
		}
	}
}

// WithHooks installs a loose encode/decode function pair.
// Both must be set; if only one is, a warning is logged and neither is used.
func WithHooks[TKey ~string](encode, decode func(string) (string, error)) Option[TKey] {
	return func(c *client[TKey]) {
		c.hookOut, c.hookIn = encode, decode
	}
}

// SetOption customizes a single Set call.
type SetOption func(*setConfig)

type setConfig struct {
	beforeStorage func(key, serialized string)
	ignore        bool
}

// WithBeforeStorage observes the resolved key and serialized value right before
// the encode hook and the write.
func WithBeforeStorage(fn func(key, serialized string)) SetOption {
	return func(cfg *setConfig) {
		cfg.beforeStorage = fn
	}
}

// WithIgnore stores the value's plain JSON form without an envelope.
func WithIgnore() SetOption {
	return func(cfg *setConfig) {
		cfg.ignore = true
	}
}

// Store persists typed values under "name:key" in a string-only Driver.
// The zero key selects the default key configured with WithDefaultKey.
type Store[TKey ~string] interface {
	Get(ctx context.Context, key TKey) (any, error)
	Has(ctx context.Context, key TKey) bool
	Set(ctx context.Context, value any, key TKey, opts ...SetOption) error
	Remove(ctx context.Context, key TKey) error

	// Mutations
	Add(ctx context.Context, data any, key TKey) error
	Pop(ctx context.Context, index any, key TKey) error

	// Diagnostics and namespace operations
	Envelope(ctx context.Context, key TKey) (any, error)
	Keys(ctx context.Context, pattern string) ([]TKey, error)
	Clear(ctx context.Context) error

	Name() string
	Key(key TKey) string
}

type client[TKey ~string] struct {
	name         string
	prefix       string
	defaultKey   TKey
	driver       Driver
	codec        *Codec
	transformer  Transformer
	transformers []Transformer
	hookOut      func(string) (string, error)
	hookIn       func(string) (string, error)
	logger       Logger
	logTag       string
}

// New creates a Store scoped to name on top of driver.
// A nil driver fails with ErrInvalidDriver.
func New[TKey ~string](driver Driver, name string, opts ...Option[TKey]) (Store[TKey], error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is nil", ErrInvalidDriver)
	}
	c := &client[TKey]{
		name:   name,
		prefix: name + ":",
		driver: driver,
		codec:  NewCodec(LayoutNested),
		logger: defaultLogger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	switch {
	case c.hookOut != nil && c.hookIn != nil:
		c.transformers = append(c.transformers, TransformFuncs{Out: c.hookOut, In: c.hookIn})
	case c.hookOut != nil || c.hookIn != nil:
		c.logf("warn", context.Background(), "encode and decode hooks must be set together, ignoring both")
	}
	c.hookOut, c.hookIn = nil, nil

	switch len(c.transformers) {
	case 0:
	case 1:
		c.transformer = c.transformers[0]
	default:
		c.transformer = Chain(c.transformers...)
	}
	return c, nil
}

func (c *client[TKey]) logf(level string, ctx context.Context, format string, args ...interface{}) {
	if c.logTag != "" {
		format = c.logTag + " " + format
	}
	switch level {
	case "info":
		c.logger.Info(ctx, format, args...)
	case "warn":
		c.logger.Warn(ctx, format, args...)
	case "error":
		c.logger.Error(ctx, format, args...)
	case "debug":
		c.logger.Debug(ctx, format, args...)
	}
}

func (c *client[TKey]) Name() string { return c.name }

func (c *client[TKey]) Get(ctx context.Context, key TKey) (any, error) {
	k := c.resolve(ctx, key, false)
	data, err := c.read(ctx, k)
	if err != nil {
		return nil, err
	}
	v, err := c.codec.Decode([]byte(data))
	if err != nil {
		c.logf("error", ctx, "Get %s failed: %v", k, err)
		return nil, err
	}
	return v, nil
}

// Envelope returns the stored envelope without unwrapping it.
func (c *client[TKey]) Envelope(ctx context.Context, key TKey) (any, error) {
	k := c.resolve(ctx, key, false)
	data, err := c.read(ctx, k)
	if err != nil {
		return nil, err
	}
	v, err := c.codec.DecodeRaw([]byte(data))
	if err != nil {
		c.logf("error", ctx, "Envelope %s failed: %v", k, err)
		return nil, err
	}
	return v, nil
}

// read fetches the raw string for a resolved key and reverses the transformers.
func (c *client[TKey]) read(ctx context.Context, k string) (string, error) {
	data, err := c.driver.Get(ctx, k)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logf("error", ctx, "Get %s failed: %v", k, err)
		}
		return "", err
	}
	if data == "" {
		return "", ErrNotFound
	}
	if c.transformer != nil {
		data, err = c.transformer.TransformIn(data)
		if err != nil {
			c.logf("error", ctx, "Get %s: decode hook failed: %v", k, err)
			return "", fmt.Errorf("%w: %s: %v", ErrTransform, k, err)
		}
	}
	return data, nil
}

func (c *client[TKey]) Has(ctx context.Context, key TKey) bool {
	v, err := c.Get(ctx, key)
	return err == nil && v != nil
}

func (c *client[TKey]) Set(ctx context.Context, value any, key TKey, opts ...SetOption) error {
	cfg := setConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	k := c.resolve(ctx, key, true)

	var (
		data []byte
		err  error
	)
	if cfg.ignore {
		data, err = json.Marshal(value)
	} else {
		data, err = c.codec.Encode(value)
	}
	if err != nil {
		c.logf("error", ctx, "Set %s: encode failed: %v", k, err)
		return err
	}

	serialized := string(data)
	if cfg.beforeStorage != nil {
		cfg.beforeStorage(k, serialized)
	}
	if c.transformer != nil {
		serialized, err = c.transformer.TransformOut(serialized)
		if err != nil {
			c.logf("error", ctx, "Set %s: encode hook failed: %v", k, err)
			return fmt.Errorf("%w: %s: %v", ErrTransform, k, err)
		}
	}

	if err := c.driver.Set(ctx, k, serialized); err != nil {
		c.logf("error", ctx, "Set %s failed: %v", k, err)
		return err
	}
	return nil
}

func (c *client[TKey]) Remove(ctx context.Context, key TKey) error {
	k := c.resolve(ctx, key, false)
	err := c.driver.Delete(ctx, k)
	if err != nil {
		c.logf("error", ctx, "Remove %s failed: %v", k, err)
	}
	return err
}

// Keys returns all business keys matching the pattern within this namespace.
func (c *client[TKey]) Keys(ctx context.Context, pattern string) ([]TKey, error) {
	fullKeys, err := c.driver.Keys(ctx, c.name, pattern)
	if err != nil {
		c.logf("error", ctx, "Keys pattern=%s failed: %v", pattern, err)
		return nil, err
	}

	businessKeys := make([]TKey, 0, len(fullKeys))
	for _, fullKey := range fullKeys {
		if len(fullKey) >= len(c.prefix) && fullKey[:len(c.prefix)] == c.prefix {
			businessKeys = append(businessKeys, TKey(fullKey[len(c.prefix):]))
		}
	}
	return businessKeys, nil
}

// Clear removes all keys in this namespace. Deletion continues past failures.
func (c *client[TKey]) Clear(ctx context.Context) error {
	fullKeys, err := c.driver.Keys(ctx, c.name, "")
	if err != nil {
		c.logf("error", ctx, "Clear failed: %v", err)
		return err
	}
	for _, k := range fullKeys {
		err = multierr.Append(err, c.driver.Delete(ctx, k))
	}
	if err != nil {
		c.logf("error", ctx, "Clear failed: %v", err)
	}
	return err
}
