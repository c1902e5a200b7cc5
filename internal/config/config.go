// Package config loads numfn.yaml and holds the names and defaults shared
// by the command line tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents numfn.yaml.
type Config struct {
	// StackCapacity is the operand stack size of every VM machine.
	StackCapacity int `yaml:"stack_capacity,omitempty"`

	// Cache is the sqlite artifact cache path, relative to the config file.
	// Empty selects DefaultCachePath; CacheOff disables caching.
	Cache string `yaml:"cache,omitempty"`

	// Listen is the gRPC address of `numfn serve`.
	Listen string `yaml:"listen,omitempty"`

	Verbose bool `yaml:"verbose,omitempty"`

	Emit EmitConfig `yaml:"emit,omitempty"`

	// Dir is the directory holding the config file, empty for defaults.
	Dir string `yaml:"-"`
}

// EmitConfig names the identifiers of emitted C source.
type EmitConfig struct {
	// Prefix is prepended to every sub-function name.
	Prefix string `yaml:"prefix,omitempty"`

	// OutputArray and InputArray name the parameters of the main function.
	OutputArray string `yaml:"output_array,omitempty"`
	InputArray  string `yaml:"input_array,omitempty"`
}

var cIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Default returns the configuration used when no numfn.yaml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a numfn.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// ParseConfig parses numfn.yaml content. The path argument is used only for
// error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for numfn.yaml starting from dir and walking up to
// parent directories. It returns "" and no error when nothing is found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.StackCapacity < 0 {
		return fmt.Errorf("%s: stack_capacity must not be negative, got %d", path, c.StackCapacity)
	}
	if c.StackCapacity > 1<<20 {
		return fmt.Errorf("%s: stack_capacity %d is too large", path, c.StackCapacity)
	}
	for key, name := range map[string]string{
		"emit.prefix":       c.Emit.Prefix,
		"emit.output_array": c.Emit.OutputArray,
		"emit.input_array":  c.Emit.InputArray,
	} {
		if name != "" && !cIdent.MatchString(name) {
			return fmt.Errorf("%s: %s %q is not a C identifier", path, key, name)
		}
	}
	if c.Emit.OutputArray != "" && c.Emit.OutputArray == c.Emit.InputArray {
		return fmt.Errorf("%s: emit.output_array and emit.input_array must differ", path)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.StackCapacity == 0 {
		c.StackCapacity = DefaultStackCapacity
	}
	if c.Cache == "" {
		c.Cache = DefaultCachePath
	}
	if c.Listen == "" {
		c.Listen = DefaultListenAddr
	}
	if c.Emit.Prefix == "" {
		c.Emit.Prefix = DefaultSubfunctionPrefix
	}
	if c.Emit.OutputArray == "" {
		c.Emit.OutputArray = DefaultOutputArray
	}
	if c.Emit.InputArray == "" {
		c.Emit.InputArray = DefaultInputArray
	}
}

// CachePath resolves the cache location against the config directory. It
// returns "" when caching is disabled.
func (c *Config) CachePath() string {
	if c.Cache == CacheOff {
		return ""
	}
	if filepath.IsAbs(c.Cache) || c.Dir == "" {
		return c.Cache
	}
	return filepath.Join(c.Dir, c.Cache)
}
