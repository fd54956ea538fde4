package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentVersion of the config file. Bumped when a section changes shape.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Bot        Bot        `koanf:"bot"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Retry      Retry      `koanf:"retry"`
	Moderation Moderation `koanf:"moderation"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// Bot contains chat platform configuration.
type Bot struct {
	// Bot token for the chat platform.
	Token string `koanf:"token"`
	// Global owner user ID.
	OwnerID int64 `koanf:"owner_id"`
	// User IDs with sudo privileges in every group.
	SudoIDs []int64 `koanf:"sudo_ids"`
	// Platform request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Number of dispatcher shards processing events.
	DispatchShards int `koanf:"dispatch_shards"`
	// Per-shard event buffer size.
	DispatchBuffer int `koanf:"dispatch_buffer"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Retry contains retry configuration for platform calls.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// Moderation contains defaults applied to newly seen groups.
type Moderation struct {
	// Warnings before escalation fires.
	DefaultWarnLimit int `koanf:"default_warn_limit"`
	// Escalation action (mute, kick, ban).
	DefaultWarnAction string `koanf:"default_warn_action"`
	// Messages inside the flood window before action.
	DefaultFloodLimit int `koanf:"default_flood_limit"`
	// Flood window length in seconds.
	DefaultFloodWindow int `koanf:"default_flood_window"`
	// Flood action (mute, kick, ban).
	DefaultFloodAction string `koanf:"default_flood_action"`
	// Action on a link violation (delete, warn, mute, kick, ban).
	DefaultAntilinkAction string `koanf:"default_antilink_action"`
	// Challenge kind for new joins (button, math, image).
	DefaultCaptchaMode string `koanf:"default_captcha_mode"`
	// Seconds before an unanswered challenge fails.
	CaptchaTimeout int `koanf:"captcha_timeout"`
	// Mute length in seconds; 0 means permanent.
	MuteDuration int `koanf:"mute_duration"`
	// Per-group fan-out call timeout in milliseconds.
	FanoutTimeout int `koanf:"fanout_timeout"`
	// Maximum concurrent fan-out calls.
	FanoutConcurrency int `koanf:"fanout_concurrency"`
}

// LoadConfig reads warden.toml from the first search path that has it and
// returns the parsed configuration along with the directory it came from.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".warden",
		homeDir + "/.warden/config",
		"/etc/warden/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/warden.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: warden.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Version != CurrentVersion {
		return nil, "", fmt.Errorf("%w: expected version %d, got %d (see config/warden.toml in the repository for the current format)",
			ErrConfigVersionMismatch, CurrentVersion, config.Version)
	}

	return &config, usedConfigPath, nil
}
