// Package config handles yavm.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/yavmLang/yavm/pkg/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "yavm.toml"

// Config represents a yavm.toml file.
type Config struct {
	VM    VMConfig    `toml:"vm"`
	Log   LogConfig   `toml:"log"`
	Batch BatchConfig `toml:"batch"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// VMConfig sets the fixed capacities of every VM.
type VMConfig struct {
	StackSize int `toml:"stack_size"`
	CallDepth int `toml:"call_depth"`
	Methods   int `toml:"methods"`
	Globals   int `toml:"globals"`
	EntrySP   int `toml:"entry_sp"`
	MaxSteps  int `toml:"max_steps"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// BatchConfig configures multi-program runs.
type BatchConfig struct {
	Workers int `toml:"workers"`
}

// Default returns the reference configuration.
func Default() *Config {
	d := vm.DefaultConfig()
	return &Config{
		VM: VMConfig{
			StackSize: d.StackSize,
			CallDepth: d.CallDepth,
			Methods:   d.Methods,
			Globals:   d.Globals,
			EntrySP:   d.EntrySP,
			MaxSteps:  d.MaxSteps,
		},
		Batch: BatchConfig{Workers: 4},
	}
}

// Load parses a configuration file. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a yavm.toml file,
// then loads and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Machine returns the VM capacities.
func (c *Config) Machine() vm.Config {
	return vm.Config{
		StackSize: c.VM.StackSize,
		CallDepth: c.VM.CallDepth,
		Methods:   c.VM.Methods,
		Globals:   c.VM.Globals,
		EntrySP:   c.VM.EntrySP,
		MaxSteps:  c.VM.MaxSteps,
	}
}

// Validate checks the VM capacities and batch settings.
func (c *Config) Validate() error {
	if err := c.Machine().Validate(); err != nil {
		return err
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch workers must be at least 1, got %d", c.Batch.Workers)
	}
	return nil
}

// LogFile returns the configured log file, or nil for stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	return &c.Log.File
}
