// Package config builds a typedstore.Store from a declarative description,
// read from YAML, TOML or JSON with comments.
//
//	name: prefs
//	default_key: ui
//	layout: nested
//	driver:
//	  kind: bolt
//	  path: /var/lib/app/prefs.db
//	  quota: 64KiB
//	transforms:
//	  - kind: zstd
//	  - kind: age
//	    identity_file: /etc/app/age.key
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"code.byted.org/khicago/typedstore"
	"code.byted.org/khicago/typedstore/boltstore"
	"code.byted.org/khicago/typedstore/transform"
)

// Driver kinds.
const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
)

// Transform kinds.
const (
	TransformZstd   = "zstd"
	TransformLZ4    = "lz4"
	TransformSnappy = "snappy"
	TransformAge    = "age"
)

// Config describes one namespaced store.
type Config struct {
	Name       string            `yaml:"name" json:"name" toml:"name"`
	DefaultKey string            `yaml:"default_key" json:"default_key" toml:"default_key"`
	Layout     string            `yaml:"layout" json:"layout" toml:"layout"`
	LogTag     string            `yaml:"log_tag" json:"log_tag" toml:"log_tag"`
	Driver     DriverConfig      `yaml:"driver" json:"driver" toml:"driver"`
	Transforms []TransformConfig `yaml:"transforms" json:"transforms" toml:"transforms"`
}

// DriverConfig selects the backing store.
type DriverConfig struct {
	Kind   string `yaml:"kind" json:"kind" toml:"kind"`
	Path   string `yaml:"path" json:"path" toml:"path"`
	Bucket string `yaml:"bucket" json:"bucket" toml:"bucket"`
	// Quota caps the memory driver, e.g. "5MB" or "64KiB". Empty means unlimited.
	Quota string `yaml:"quota" json:"quota" toml:"quota"`
}

// TransformConfig describes one step of the transform chain, applied in order on write.
type TransformConfig struct {
	Kind         string   `yaml:"kind" json:"kind" toml:"kind"`
	Identity     string   `yaml:"identity" json:"identity" toml:"identity"`
	IdentityFile string   `yaml:"identity_file" json:"identity_file" toml:"identity_file"`
	Recipients   []string `yaml:"recipients" json:"recipients" toml:"recipients"`
}

// Default returns an in-memory store configuration named name.
func Default(name string) *Config {
	return &Config{Name: name, Driver: DriverConfig{Kind: DriverMemory}}
}

// Load reads path. ".json" and ".jsonc" files are parsed as JSON with
// comments, ".toml" files as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	format := "yaml"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		format = "json"
	case ".toml":
		format = "toml"
	}
	return Parse(data, format)
}

// Parse decodes data in the given format: "yaml", "json" or "toml".
func Parse(data []byte, format string) (*Config, error) {
	cfg := &Config{}
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	case "json", "jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parse json: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unknown format %q", format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that Open would otherwise reject late.
func (c *Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if _, err := typedstore.ParseLayout(c.Layout); err != nil {
		errs = append(errs, err)
	}
	switch c.Driver.Kind {
	case "", DriverMemory:
	case DriverBolt:
		if c.Driver.Path == "" {
			errs = append(errs, errors.New("driver.path is required for bolt"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver kind %q", c.Driver.Kind))
	}
	if _, err := c.Driver.quotaBytes(); err != nil {
		errs = append(errs, err)
	}
	for i, t := range c.Transforms {
		switch t.Kind {
		case TransformZstd, TransformLZ4, TransformSnappy:
		case TransformAge:
			if t.Identity == "" && t.IdentityFile == "" && len(t.Recipients) == 0 {
				errs = append(errs, fmt.Errorf("transforms[%d]: age needs an identity or recipients", i))
			}
		default:
			errs = append(errs, fmt.Errorf("transforms[%d]: unknown kind %q", i, t.Kind))
		}
	}
	if err := multierr.Combine(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Open builds the driver, transformers and store. The returned close func
// releases the driver and must be called when the store is no longer used.
func Open(cfg *Config, logger *zap.Logger) (typedstore.Store[string], func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	layout, _ := typedstore.ParseLayout(cfg.Layout)

	opts := []typedstore.Option[string]{
		typedstore.WithLayout[string](layout),
		typedstore.WithLogger[string](typedstore.NewZapLogger(logger)),
		typedstore.WithLogTag[string](cfg.LogTag),
	}
	if cfg.DefaultKey != "" {
		opts = append(opts, typedstore.WithDefaultKey[string](cfg.DefaultKey))
	}
	for i, t := range cfg.Transforms {
		tr, err := buildTransform(t)
		if err != nil {
			return nil, nil, fmt.Errorf("config: transforms[%d]: %w", i, err)
		}
		opts = append(opts, typedstore.WithTransformer[string](tr))
	}

	var (
		driver  typedstore.Driver
		closeFn = func() error { return nil }
	)
	switch cfg.Driver.Kind {
	case DriverBolt:
		db, err := boltstore.Open(cfg.Driver.Path,
			boltstore.WithBucket(cfg.Driver.Bucket),
			boltstore.WithLogger(logger.Named("boltstore")))
		if err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
		driver, closeFn = db, db.Close
	default:
		quota, _ := cfg.Driver.quotaBytes()
		driver = typedstore.NewMemory(typedstore.WithQuota(quota))
	}

	store, err := typedstore.New[string](driver, cfg.Name, opts...)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func buildTransform(t TransformConfig) (typedstore.Transformer, error) {
	switch t.Kind {
	case TransformZstd:
		return transform.Zstd(), nil
	case TransformLZ4:
		return transform.LZ4(), nil
	case TransformSnappy:
		return transform.Snappy(), nil
	case TransformAge:
		identity := t.Identity
		if t.IdentityFile != "" {
			data, err := os.ReadFile(t.IdentityFile)
			if err != nil {
				return nil, err
			}
			identity = firstKeyLine(string(data))
		}
		return transform.NewSealer(identity, t.Recipients...)
	default:
		return nil, fmt.Errorf("unknown kind %q", t.Kind)
	}
}

func (d DriverConfig) quotaBytes() (int, error) {
	if d.Quota == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(d.Quota)
	if err != nil {
		return 0, fmt.Errorf("driver.quota: %w", err)
	}
	return int(n), nil
}

// firstKeyLine skips the comment lines age-keygen writes above the key.
func firstKeyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}
