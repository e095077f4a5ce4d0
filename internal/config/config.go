package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all attention configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Scaling  ScalingConfig  `yaml:"scaling"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScalingConfig overlays the default scaling table. Nil scalars and an empty
// merge window keep the defaults.
type ScalingConfig struct {
	Weights     map[string]float64 `yaml:"weights"`      // kind name -> weight
	Decay       *float64           `yaml:"decay"`        // fraction lost per event, [0, 1]
	Landmark    *float64           `yaml:"landmark"`     // landmark threshold
	MergeWindow string             `yaml:"merge_window"` // e.g. "60s"
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from ATTENTION_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ATTENTION_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ATTENTION_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ATTENTION_BIND"); v != "" {
		c.Server.Bind = v
	}
}

// Validate checks values that cannot be corrected later.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if d := c.Scaling.Decay; d != nil && (*d < 0 || *d > 1) {
		return fmt.Errorf("config: decay %v outside [0, 1]", *d)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
