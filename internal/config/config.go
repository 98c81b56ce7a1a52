// Package config provides configuration management for velite using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the VELITE_ prefix, and validation of paths and patterns.
// It declares the content root, the output location, strict mode, and the
// content collections with their glob patterns, schemas, and cardinality.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved configuration for one build or watch session.
type Config struct {
	// Root is the content root directory all collection patterns are
	// relative to.
	Root string `yaml:"root" mapstructure:"root"`
	// Output configures where build artifacts are written.
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	// Strict escalates any validation diagnostic into a fatal build error.
	Strict bool `yaml:"strict" mapstructure:"strict"`
	// Collections declares the named content collections.
	Collections []Collection `yaml:"collections" mapstructure:"collections"`

	// File is the absolute path of the loaded config file, empty when
	// running on defaults. The watch loop uses it to detect configuration
	// changes that require a full restart.
	File string `yaml:"-" mapstructure:"-"`
}

// OutputConfig configures artifact emission.
type OutputConfig struct {
	// Dir receives collection data files, copied assets, and the entry
	// manifest.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Collection declares one named, schema-typed set of content records.
type Collection struct {
	// Name is the key of this collection in the aggregate result.
	Name string `yaml:"name" mapstructure:"name"`
	// Patterns are glob patterns relative to the content root.
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`
	// Schema is an inline CUE schema each record must satisfy. Empty means
	// every record passes unchanged.
	Schema string `yaml:"schema" mapstructure:"schema"`
	// Single marks a collection expected to resolve to exactly one record.
	Single bool `yaml:"single" mapstructure:"single"`
}

// Load builds a Config from the current viper state, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.File = viper.ConfigFileUsed()
	if config.File != "" {
		if abs, err := filepath.Abs(config.File); err == nil {
			config.File = abs
		}
	}

	if config.Root == "" {
		config.Root = "content"
	}
	if config.Output.Dir == "" {
		config.Output.Dir = ".velite"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// AbsRoot returns the absolute content root.
func (c *Config) AbsRoot() (string, error) {
	return filepath.Abs(c.Root)
}

// validateConfig validates configuration values for security and correctness.
func validateConfig(config *Config) error {
	if err := validatePath(config.Root); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if err := validatePath(config.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}

	seen := make(map[string]bool, len(config.Collections))
	for i, col := range config.Collections {
		if col.Name == "" {
			return fmt.Errorf("collections[%d]: name is required", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("collections[%d]: duplicate name %q", i, col.Name)
		}
		seen[col.Name] = true

		if len(col.Patterns) == 0 {
			return fmt.Errorf("collection %q: at least one pattern is required", col.Name)
		}
		for _, pattern := range col.Patterns {
			if err := validatePattern(pattern); err != nil {
				return fmt.Errorf("collection %q: %w", col.Name, err)
			}
		}
	}
	return nil
}

// validatePath validates a file path for security.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}
	return nil
}

// validatePattern validates a collection glob pattern. Patterns stay relative
// to the content root.
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if filepath.IsAbs(pattern) {
		return fmt.Errorf("pattern must be relative: %s", pattern)
	}
	if strings.Contains(pattern, "..") {
		return fmt.Errorf("pattern contains traversal: %s", pattern)
	}
	return nil
}
