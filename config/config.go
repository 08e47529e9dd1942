// Package config handles mop.toml runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/mop/callsite"
	"github.com/chazu/mop/meta"
)

// FileName is the name of the configuration file.
const FileName = "mop.toml"

// Config represents a mop.toml configuration.
type Config struct {
	Dispatch Dispatch `toml:"dispatch"`
	Log      Log      `toml:"log"`
	Profile  Profile  `toml:"profile"`
	Server   Server   `toml:"server"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// Dispatch tunes the registry and call sites.
type Dispatch struct {
	PolymorphicThreshold  int  `toml:"polymorphic-threshold"`
	KeepNativeMetaclasses bool `toml:"keep-native-metaclasses"`
	WeakPruneInterval     int  `toml:"weak-prune-interval"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Profile configures dispatch profile output.
type Profile struct {
	Output string `toml:"output"`
}

// Server configures the inspection service.
type Server struct {
	Address string `toml:"address"`
}

// Default returns the configuration used when no mop.toml exists.
func Default() *Config {
	return &Config{
		Dispatch: Dispatch{
			PolymorphicThreshold: callsite.DefaultPolymorphicThreshold,
			WeakPruneInterval:    meta.DefaultPruneInterval,
		},
		Log:     Log{Verbosity: 0},
		Profile: Profile{Output: "mop.profile"},
		Server:  Server{Address: "localhost:7411"},
	}
}

// Parse decodes configuration text. Unset values keep their defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// Load parses mop.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// FindAndLoad walks up from startDir to find a mop.toml file. Returns the
// default configuration if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate reports every out-of-range value.
func (c *Config) Validate() error {
	var errs []error
	if c.Dispatch.PolymorphicThreshold < 1 {
		errs = append(errs, fmt.Errorf("dispatch.polymorphic-threshold must be positive, got %d", c.Dispatch.PolymorphicThreshold))
	}
	if c.Dispatch.WeakPruneInterval < 1 {
		errs = append(errs, fmt.Errorf("dispatch.weak-prune-interval must be positive, got %d", c.Dispatch.WeakPruneInterval))
	}
	if c.Log.Verbosity < 0 || c.Log.Verbosity > 5 {
		errs = append(errs, fmt.Errorf("log.verbosity must be between 0 and 5, got %d", c.Log.Verbosity))
	}
	return errors.Join(errs...)
}

// RegistryOptions translates the dispatch section for meta.NewRegistry.
func (c *Config) RegistryOptions() []meta.RegistryOption {
	return []meta.RegistryOption{
		meta.WithKeepNativeMetaclasses(c.Dispatch.KeepNativeMetaclasses),
		meta.WithWeakPruneInterval(c.Dispatch.WeakPruneInterval),
	}
}

// RuntimeOptions translates the dispatch section for callsite.New.
func (c *Config) RuntimeOptions() []callsite.Option {
	return []callsite.Option{
		callsite.WithPolymorphicThreshold(c.Dispatch.PolymorphicThreshold),
	}
}

// NewRuntime builds a registry and runtime from the configuration.
func (c *Config) NewRuntime() *callsite.Runtime {
	return callsite.New(meta.NewRegistry(c.RegistryOptions()...), c.RuntimeOptions()...)
}
