package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/natefinch/atomic"
)

const (
	backendFile   = "file"
	backendSQLite = "sqlite"
)

// GenerateConfig holds the defaults used by the generate command.
type GenerateConfig struct {
	MaxLength      int     `json:"max_length"`
	Temperature    float64 `json:"temperature"`
	TopK           int     `json:"top_k"`
	StopAtTerminal bool    `json:"stop_at_terminal"`
	Lowercase      bool    `json:"lowercase"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	LogLevel     string         `json:"log_level"`
	Backend      string         `json:"backend"`
	DatabasePath string         `json:"database_path"`
	Markov       markov.Config  `json:"markov_config"`
	Generate     GenerateConfig `json:"generate_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		Backend:      backendFile,
		DatabasePath: "./markov/markov.db",
		Markov:       markov.DefaultConfig(),
		Generate: GenerateConfig{
			MaxLength:      40,
			Temperature:    1.0,
			TopK:           0,
			StopAtTerminal: true,
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the tool can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would otherwise only fail deep inside a command.
func (c *Config) Validate() error {
	if c.Markov.Order < 1 {
		return fmt.Errorf("%w: markov_config.order must be at least 1", markov.ErrInvalidConfiguration)
	}
	if c.Generate.MaxLength < 0 {
		return fmt.Errorf("%w: generate_config.max_length must not be negative", markov.ErrInvalidConfiguration)
	}
	switch c.Backend {
	case backendFile, backendSQLite:
	default:
		return fmt.Errorf("%w: unknown backend %q", markov.ErrInvalidConfiguration, c.Backend)
	}
	return nil
}

// Level maps the configured log level to a slog.Level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
