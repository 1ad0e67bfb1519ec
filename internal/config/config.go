// ABOUTME: YAML configuration loading for the chatkit dev server
// ABOUTME: Supports ${ENV} expansion, duration strings, and validation with defaults

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full dev server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Streaming StreamingConfig `yaml:"streaming"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string `yaml:"listen"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// Parsed form, populated by parseDurations.
	ShutdownTimeoutDuration time.Duration `yaml:"-"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	// Type is "memory" or "sqlite".
	Type string `yaml:"type"`
	// Path is the SQLite file, required when type is "sqlite".
	Path string `yaml:"path"`
}

// StreamingConfig tunes the simulated response pacing. Tests set the delays
// to zero so streams complete immediately.
type StreamingConfig struct {
	ChunkSize  int    `yaml:"chunk_size"`
	ChunkDelay string `yaml:"chunk_delay"`
	SlowDelay  string `yaml:"slow_delay"`
	StageDelay string `yaml:"stage_delay"`

	ChunkDelayDuration time.Duration `yaml:"-"`
	SlowDelayDuration  time.Duration `yaml:"-"`
	StageDelayDuration time.Duration `yaml:"-"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given: memory
// store, port 8000, pacing that matches the hosted dev server.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Listen:          ":8000",
			ShutdownTimeout: "10s",
		},
		Database: DatabaseConfig{
			Type: "memory",
		},
		Streaming: StreamingConfig{
			ChunkSize:  12,
			ChunkDelay: "30ms",
			SlowDelay:  "500ms",
			StageDelay: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	// Defaults are internally consistent, parse cannot fail.
	_ = cfg.parseDurations()
	return cfg
}

// Load reads, expands, parses, and validates a config file. Missing fields
// fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func (c *Config) parseDurations() error {
	var err error
	if c.Server.ShutdownTimeoutDuration, err = time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid server.shutdown_timeout: %w", err)
	}
	if c.Streaming.ChunkDelayDuration, err = time.ParseDuration(c.Streaming.ChunkDelay); err != nil {
		return fmt.Errorf("invalid streaming.chunk_delay: %w", err)
	}
	if c.Streaming.SlowDelayDuration, err = time.ParseDuration(c.Streaming.SlowDelay); err != nil {
		return fmt.Errorf("invalid streaming.slow_delay: %w", err)
	}
	if c.Streaming.StageDelayDuration, err = time.ParseDuration(c.Streaming.StageDelay); err != nil {
		return fmt.Errorf("invalid streaming.stage_delay: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints after parsing.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required when database.type is sqlite")
		}
	default:
		return fmt.Errorf("unknown database.type %q (want memory or sqlite)", c.Database.Type)
	}
	if c.Streaming.ChunkSize <= 0 {
		return fmt.Errorf("streaming.chunk_size must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}
