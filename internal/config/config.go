// Package config loads the relay configuration from a YAML document.
// Because YAML is a superset of JSON, a JSON config file loads unchanged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jsamuel1/agi-diy/internal/model"
)

const (
	// DefaultHost is the interface the relay listens on.
	DefaultHost = "localhost"

	// DefaultPort is the first port probed at startup.
	DefaultPort = 10000

	// MaxPort is the last port probed at startup.
	MaxPort = 10100
)

// Config is the complete relay configuration.
type Config struct {
	Server       ServerConfig        `yaml:"server"`
	Agents       []model.AgentConfig `yaml:"agents"`
	Relay        RelayConfig         `yaml:"relay"`
	AgentRuntime AgentRuntimeConfig  `yaml:"agent_runtime"`
	Database     DatabaseConfig      `yaml:"database"`
	Logging      LoggingConfig       `yaml:"logging"`

	// Path is the file the configuration was read from.
	Path string `yaml:"-"`

	// Created is set when Load wrote a default file because none existed.
	Created bool `yaml:"-"`
}

// ServerConfig holds the listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RelayConfig tunes liveness, validation and connection limits.
type RelayConfig struct {
	ReapInterval time.Duration `yaml:"-"`
	StaleTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReapIntervalRaw string `yaml:"reap_interval"`
	StaleTimeoutRaw string `yaml:"stale_timeout"`

	ValidateEvents bool  `yaml:"validate_events"`
	MaxMessageSize int64 `yaml:"max_message_size"`
	SendBuffer     int   `yaml:"send_buffer"`
}

// AgentRuntimeConfig configures supervised agent processes.
type AgentRuntimeConfig struct {
	Command        string        `yaml:"command"`
	GracePeriod    time.Duration `yaml:"-"`
	GracePeriodRaw string        `yaml:"grace_period"`
	TranscriptDir  string        `yaml:"transcript_dir"`
	OutputBuffer   int           `yaml:"output_buffer"`
}

// DatabaseConfig locates the agent run history. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Dir returns the per-user configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "ag-mesh-relay")
	}
	return filepath.Join(home, ".config", "ag-mesh-relay")
}

// DefaultPath returns the configuration file used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the configuration used for anything a file leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Agents: []model.AgentConfig{},
		Relay: RelayConfig{
			ReapIntervalRaw: "10s",
			StaleTimeoutRaw: "30s",
			ValidateEvents:  true,
			MaxMessageSize:  1 << 20,
			SendBuffer:      256,
		},
		AgentRuntime: AgentRuntimeConfig{
			Command:        "kiro-cli",
			GracePeriodRaw: "5s",
			OutputBuffer:   64 * 1024,
		},
		Database: DatabaseConfig{Path: filepath.Join(Dir(), "runs.db")},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration at path, or DefaultPath when path is empty.
// A missing file is created with the defaults. Environment overrides are
// applied after the file, then durations are parsed and the result validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		cfg.Created = true
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.Path = path

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyEnv overlays the environment variables the relay honours.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("VALIDATE_EVENTS"); v != "" {
		cfg.Relay.ValidateEvents = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.AgentRuntime.TranscriptDir = v
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"relay.reap_interval", cfg.Relay.ReapIntervalRaw, &cfg.Relay.ReapInterval},
		{"relay.stale_timeout", cfg.Relay.StaleTimeoutRaw, &cfg.Relay.StaleTimeout},
		{"agent_runtime.grace_period", cfg.AgentRuntime.GracePeriodRaw, &cfg.AgentRuntime.GracePeriod},
	}
	for _, f := range fields {
		if f.raw == "" {
			return fmt.Errorf("%s is required", f.name)
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that all configuration fields are usable.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in the range 1-65535, got %d", c.Server.Port)
	}
	if c.Relay.ReapInterval <= 0 {
		return fmt.Errorf("relay.reap_interval must be positive")
	}
	if c.Relay.StaleTimeout <= 0 {
		return fmt.Errorf("relay.stale_timeout must be positive")
	}
	if c.AgentRuntime.GracePeriod <= 0 {
		return fmt.Errorf("agent_runtime.grace_period must be positive")
	}
	if c.AgentRuntime.Command == "" {
		return fmt.Errorf("agent_runtime.command is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d].id %q is duplicated", i, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}
