// ABOUTME: Configuration loading and parsing for chorus-hub
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chorus-hub configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Engines  EnginesConfig  `yaml:"engines"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Session  SessionConfig  `yaml:"session"`
	Parity   ParityConfig   `yaml:"parity"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the archive database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty JWTSecret disables
// bearer auth on the API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// EnginesConfig wires the supported engines. Every section is optional; an
// engine without a history_url simply cannot restore thread history.
type EnginesConfig struct {
	Codex  EngineConfig `yaml:"codex"`
	Claude EngineConfig `yaml:"claude"`
	Gemini EngineConfig `yaml:"gemini"`
}

// EngineConfig holds one engine's wiring: where its session backend lives
// and which alternate wire name, if any, the ingest route accepts for it.
type EngineConfig struct {
	HistoryURL   string `yaml:"history_url"`
	HistoryToken string `yaml:"history_token"`
	Alias        string `yaml:"alias"`
}

// ByName returns the engine sections keyed by canonical engine name.
func (e EnginesConfig) ByName() map[string]EngineConfig {
	return map[string]EngineConfig{
		"codex":  e.Codex,
		"claude": e.Claude,
		"gemini": e.Gemini,
	}
}

// DedupeConfig sizes the event fingerprint cache
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// SessionConfig holds session-layer timing configuration
type SessionConfig struct {
	CompletionWindow time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CompletionWindowRaw string `yaml:"completion_window"`
}

// ParityConfig controls the realtime-versus-history comparison that runs
// after each restore. Zero value means enabled.
type ParityConfig struct {
	Disabled bool `yaml:"disabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded,
// duration strings are parsed, and defaults fill anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields with production defaults.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:8420"
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 5 * time.Minute
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 100_000
	}
	if c.Session.CompletionWindow == 0 {
		c.Session.CompletionWindow = 2 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Dedupe.TTL < 0 {
		return fmt.Errorf("dedupe.ttl must not be negative")
	}
	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}
	if c.Session.CompletionWindow < 0 {
		return fmt.Errorf("session.completion_window must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return c.validateAliases()
}

// validateAliases rejects alias names that shadow a canonical engine or
// that two engine sections both claim.
func (c *Config) validateAliases() error {
	canonical := map[string]bool{"codex": true, "claude": true, "gemini": true}
	owner := map[string]string{}

	for _, e := range []struct {
		name  string
		alias string
	}{
		{"codex", c.Engines.Codex.Alias},
		{"claude", c.Engines.Claude.Alias},
		{"gemini", c.Engines.Gemini.Alias},
	} {
		if e.alias == "" {
			continue
		}
		if canonical[e.alias] {
			return fmt.Errorf("engines.%s.alias %q shadows a canonical engine name", e.name, e.alias)
		}
		if prev, taken := owner[e.alias]; taken {
			return fmt.Errorf("engines.%s.alias %q already claimed by engines.%s", e.name, e.alias, prev)
		}
		owner[e.alias] = e.name
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	if cfg.Session.CompletionWindowRaw != "" {
		cfg.Session.CompletionWindow, err = time.ParseDuration(cfg.Session.CompletionWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing session.completion_window %q: %w", cfg.Session.CompletionWindowRaw, err)
		}
	}

	return nil
}
