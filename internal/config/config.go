// ABOUTME: Configuration loading and parsing for smellybot
// ABOUTME: Supports TOML or YAML files with .env loading, environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Presence sources: which Matrix state events count as entering a channel.
const (
	PresenceCall       = "call"
	PresenceMembership = "membership"
)

// Config represents the complete smellybot configuration
type Config struct {
	Matrix  MatrixConfig  `toml:"matrix" yaml:"matrix"`
	Bot     BotConfig     `toml:"bot" yaml:"bot"`
	Storage StorageConfig `toml:"storage" yaml:"storage"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// MatrixConfig holds the chat gateway connection settings
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver" yaml:"homeserver"`
	Username    string `toml:"username" yaml:"username"`
	Password    string `toml:"password" yaml:"password"`
	UserID      string `toml:"user_id" yaml:"user_id"`           // required with access_token
	AccessToken string `toml:"access_token" yaml:"access_token"` // skips password login
	RecoveryKey string `toml:"recovery_key" yaml:"recovery_key"` // enables E2EE
}

// BotConfig holds command and presence handling settings
type BotConfig struct {
	CommandPrefix  string   `toml:"command_prefix" yaml:"command_prefix"`
	Admins         []string `toml:"admins" yaml:"admins"`
	AllowedRooms   []string `toml:"allowed_rooms" yaml:"allowed_rooms"`
	PresenceSource string   `toml:"presence_source" yaml:"presence_source"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Backend string `toml:"backend" yaml:"backend"`
	Path    string `toml:"path" yaml:"path"`

	// FlushInterval re-persists the state periodically; zero disables it
	FlushInterval time.Duration `toml:"-" yaml:"-"`

	// Raw string value for unmarshaling
	FlushIntervalRaw string `toml:"flush_interval" yaml:"flush_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns a Config with every optional field filled in.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			CommandPrefix:  "!",
			PresenceSource: PresenceCall,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			Path:    "db/smelly.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file in the working directory is loaded first; variables already set win.
// Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("matrix.homeserver must use http or https scheme")
	}

	if c.Matrix.AccessToken != "" {
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required with matrix.access_token")
		}
	} else {
		if c.Matrix.Username == "" {
			return fmt.Errorf("matrix.username is required (or set matrix.access_token)")
		}
		if c.Matrix.Password == "" {
			return fmt.Errorf("matrix.password is required (or set matrix.access_token)")
		}
	}

	if strings.TrimSpace(c.Bot.CommandPrefix) == "" {
		return fmt.Errorf("bot.command_prefix must not be empty")
	}
	switch c.Bot.PresenceSource {
	case PresenceCall, PresenceMembership:
	default:
		return fmt.Errorf("bot.presence_source must be %q or %q, got %q", PresenceCall, PresenceMembership, c.Bot.PresenceSource)
	}

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.FlushInterval < 0 {
		return fmt.Errorf("storage.flush_interval must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Storage.FlushIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.Storage.FlushIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing flush_interval %q: %w", cfg.Storage.FlushIntervalRaw, err)
		}
		cfg.Storage.FlushInterval = d
	}
	return nil
}

// DefaultPath returns the config file location.
// Priority: SMELLYBOT_CONFIG env var > XDG_CONFIG_HOME/smellybot/config.toml > ~/.config/smellybot/config.toml
func DefaultPath() string {
	if envPath := os.Getenv("SMELLYBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "smellybot", "config.toml")
}

// DataPath returns the directory for auxiliary data such as the E2EE crypto store.
// Priority: XDG_DATA_HOME/smellybot > ~/.local/share/smellybot
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "smellybot")
}
