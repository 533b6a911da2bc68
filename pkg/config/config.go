package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete DittoDrive configuration.
//
// This structure captures all configurable aspects of the drive:
//   - Logging configuration
//   - Process settings (shutdown, metrics endpoint)
//   - Namespace store selection and configuration (store-specific)
//   - Namespace rules (names, search, batch limits, default folder)
//   - Import pacing
//   - Blob store selection and configuration (store-specific)
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTODRIVE_*), including a .env file
//  2. Configuration file (YAML)
//  3. Default values
//
// Store Configuration Pattern:
// Each backend defines its own configuration type. The Config struct holds
// type-specific sections (e.g., store.badger, store.postgres) and only the
// section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store selects where the namespace is persisted
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Namespace holds naming and search rules
	Namespace NamespaceConfig `mapstructure:"namespace" yaml:"namespace"`

	// Importer paces bulk and fast imports
	Importer ImporterConfig `mapstructure:"importer" yaml:"importer"`

	// Blob selects the blob store the importer reads from and copies into
	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled turns on collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port for the metrics HTTP server
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// StoreConfig specifies namespace store configuration.
//
// The Type field determines which backend is used.
type StoreConfig struct {
	// Type specifies which backend to use
	// Valid values: memory, file, badger, postgres
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory file badger postgres"`

	// File contains JSON snapshot file configuration
	// Only used when Type = "file"
	File map[string]any `mapstructure:"file" yaml:"file"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// Postgres contains PostgreSQL-specific configuration
	// Only used when Type = "postgres"
	Postgres map[string]any `mapstructure:"postgres" yaml:"postgres"`
}

// NamespaceConfig holds the rules applied by the drive service.
type NamespaceConfig struct {
	// NameMaxLength is the maximum folder name length in characters
	NameMaxLength int `mapstructure:"name_max_length" yaml:"name_max_length" validate:"gt=0,lte=4096"`

	// NamePattern is the regular expression folder names must match
	NamePattern string `mapstructure:"name_pattern" yaml:"name_pattern" validate:"required"`

	// SearchMode is the default match mode: exact or substring
	SearchMode string `mapstructure:"search_mode" yaml:"search_mode" validate:"required,oneof=exact substring contains"`

	// DefaultFolder is the current folder chosen when none is persisted
	DefaultFolder string `mapstructure:"default_folder" yaml:"default_folder" validate:"required"`
}

// ImporterConfig paces import jobs.
type ImporterConfig struct {
	// MaxBatchItems caps the message range of one import request
	MaxBatchItems int `mapstructure:"max_batch_items" yaml:"max_batch_items" validate:"gt=0"`

	// Rate is the sustained number of items per second (0 = unlimited)
	Rate uint `mapstructure:"rate" yaml:"rate"`

	// Burst is how many items may run back to back
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

// BlobConfig specifies the blob store.
type BlobConfig struct {
	// Type specifies which blob store implementation to use
	// Valid values: memory, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory s3"`

	// StorageChannel is the channel the drive copies bulk imports into
	StorageChannel string `mapstructure:"storage_channel" yaml:"storage_channel" validate:"required"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// A .env file in the working directory is loaded first (existing
// environment variables win), so DITTODRIVE_* values can live there.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read .env file: %w", err)
}

// envKeys lists the scalar keys bound to environment variables. AutomaticEnv
// only applies to keys viper already knows, so keys absent from the config
// file are bound explicitly.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"store.type",
	"namespace.name_max_length",
	"namespace.name_pattern",
	"namespace.search_mode",
	"namespace.default_folder",
	"importer.max_batch_items",
	"importer.rate",
	"importer.burst",
	"blob.type",
	"blob.storage_channel",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DITTODRIVE_ prefix and underscores
	// Example: DITTODRIVE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTODRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittodrive/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittodrive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittodrive")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
