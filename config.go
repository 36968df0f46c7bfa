package kv

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
)

// Engine names accepted by Config.Engine.
const (
	EngineBolt   = "bolt"
	EngineBadger = "badger"
	EngineMemory = "memory"
)

// Config describes a store. The zero value is not usable; start from
// NewConfig.
type Config struct {
	// Path is the directory holding the store's files.
	Path string `toml:"path"`

	// Engine selects the storage backend: "bolt" (default), "badger" or
	// "memory".
	Engine string `toml:"engine,omitempty"`

	// ReadOnly rejects all writes and opens the engine read-only.
	ReadOnly bool `toml:"read_only"`

	// Temporary deletes the store's directory on Close.
	Temporary bool `toml:"temporary"`

	// UseCompression enables on-disk compression on engines that support it
	// (Badger); ignored otherwise.
	UseCompression bool `toml:"use_compression"`

	// FlushEveryMs switches the engine to asynchronous durability with a
	// periodic flush at this interval. 0 means synchronous writes.
	FlushEveryMs int64 `toml:"flush_every_ms"`

	// CacheCapacity is a cache/mmap sizing hint in bytes. 0 uses engine
	// defaults.
	CacheCapacity int64 `toml:"cache_capacity"`

	// Buckets optionally whitelists bucket names; when non-empty, opening a
	// name outside the list fails with ErrInvalidBucket.
	Buckets []string `toml:"buckets,omitempty"`
}

// NewConfig returns the default configuration for a store rooted at path.
func NewConfig(path string) *Config {
	return &Config{
		Path:   path,
		Engine: EngineBolt,
	}
}

func (c *Config) SetPath(path string) *Config {
	c.Path = path
	return c
}

func (c *Config) SetEngine(engine string) *Config {
	c.Engine = engine
	return c
}

func (c *Config) SetReadOnly(v bool) *Config {
	c.ReadOnly = v
	return c
}

func (c *Config) SetTemporary(v bool) *Config {
	c.Temporary = v
	return c
}

func (c *Config) SetUseCompression(v bool) *Config {
	c.UseCompression = v
	return c
}

func (c *Config) SetFlushEveryMs(ms int64) *Config {
	c.FlushEveryMs = ms
	return c
}

func (c *Config) SetCacheCapacity(n int64) *Config {
	c.CacheCapacity = n
	return c
}

// AddBucket appends name to the bucket whitelist.
func (c *Config) AddBucket(name string) *Config {
	c.Buckets = append(c.Buckets, name)
	return c
}

func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	switch c.Engine {
	case "", EngineBolt, EngineBadger, EngineMemory:
	default:
		return fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, c.Engine)
	}
	if c.FlushEveryMs < 0 {
		return fmt.Errorf("%w: flush_every_ms must be >= 0", ErrInvalidConfig)
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("%w: cache_capacity must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) allowsBucket(name string) bool {
	return len(c.Buckets) == 0 || slices.Contains(c.Buckets, name)
}

func (c *Config) clone() *Config {
	out := *c
	out.Buckets = slices.Clone(c.Buckets)
	return &out
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	defer f.Close()
	return DecodeConfig(f)
}

// DecodeConfig reads a TOML configuration from a stream.
func DecodeConfig(r io.Reader) (*Config, error) {
	cfg := &Config{Engine: EngineBolt}
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a TOML file.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	err = c.Encode(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Encode writes the configuration as TOML to a stream.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
