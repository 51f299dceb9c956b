// Package sdoconfig loads the host process's configuration from a TOML
// document, with defaults applied before any file is read so a partial
// file only overrides what it mentions.
package sdoconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration document.
type Config struct {
	Graph       GraphConfig       `toml:"graph"`
	Logging     LoggingConfig     `toml:"logging"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// GraphConfig controls ExpressionGraph construction policy.
type GraphConfig struct {
	// UniqueConstants forces the builder to never hash-cons CONSTANT nodes:
	// every constant literal gets its own node.
	UniqueConstants bool `toml:"unique_constants"`
	// DefaultTableau names the butcher.Tableau a simulation uses absent an
	// explicit per-run override.
	DefaultTableau string `toml:"default_tableau"`
}

// LoggingConfig controls the shared logrus.Logger's verbosity.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DiagnosticsConfig controls how a diagnostics.Bag is rendered.
type DiagnosticsConfig struct {
	ShowErrors   bool `toml:"show_errors"`
	ShowWarnings bool `toml:"show_warnings"`
}

// Default returns the configuration used when no TOML file is supplied.
func Default() Config {
	return Config{
		Graph: GraphConfig{
			UniqueConstants: false,
			DefaultTableau:  "RUNGE_KUTTA_4",
		},
		Logging: LoggingConfig{Level: "info"},
		Diagnostics: DiagnosticsConfig{
			ShowErrors:   true,
			ShowWarnings: true,
		},
	}
}

// Load reads and decodes a TOML document at path into a Config seeded with
// Default's values, so a partial file only overrides what it mentions.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("sdoconfig: loading %s: %w", path, err)
	}
	return cfg, nil
}

// LoadString decodes a TOML document from text, for tests and embedded
// defaults that don't warrant a file on disk.
func LoadString(text string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(text, &cfg); err != nil {
		return Config{}, fmt.Errorf("sdoconfig: decoding config: %w", err)
	}
	return cfg, nil
}
