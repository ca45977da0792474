package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/marmos91/dittoots/pkg/gc"
	"github.com/marmos91/dittoots/pkg/importer"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override, e.g.
// DITTOOTS_LOGGING_LEVEL=DEBUG or DITTOOTS_ADAPTERS_TCP_PORT=7000.
const EnvPrefix = "DITTOOTS"

// Config represents the complete DittoOTS configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOOTS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store sections follow one pattern: a Type field selects the backend and
// only the map with the matching name is decoded, by that backend's
// factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// OTS configures the object server itself
	OTS OTSConfig `mapstructure:"ots" yaml:"ots"`

	// Content selects where object bytes are stored
	Content ContentConfig `mapstructure:"content" yaml:"content"`

	// Catalog selects where object metadata is persisted
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// GC configures the orphaned content collector
	GC gc.Config `mapstructure:"gc" yaml:"gc"`

	// Importer configures the inbox directory watcher
	Importer importer.Config `mapstructure:"importer" yaml:"importer"`

	// Adapters contains transport configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum level written: DEBUG, INFO, WARN or ERROR
	// (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is text or json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns on collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port serves /metrics
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// OTSConfig configures the object server.
//
// Feature and property lists use lowercase names; an omitted list enables
// everything.
type OTSConfig struct {
	// Capacity is the number of objects the server can hold
	Capacity int `mapstructure:"capacity" yaml:"capacity" validate:"min=0,max=65535"`

	// MaxObjectSize bounds the allocated size of an object in bytes.
	// 0 means no limit beyond the 32-bit size field.
	MaxObjectSize uint32 `mapstructure:"max_object_size" yaml:"max_object_size"`

	// MaxChunkSize bounds one transfer channel chunk
	MaxChunkSize int `mapstructure:"max_chunk_size" yaml:"max_chunk_size" validate:"min=0,max=65535"`

	// OACPFeatures lists the supported Object Action Control Point
	// procedures
	OACPFeatures []string `mapstructure:"oacp_features" yaml:"oacp_features" validate:"dive,oneof=create delete checksum execute read write append truncate patch abort"`

	// OLCPFeatures lists the supported optional Object List Control Point
	// procedures
	OLCPFeatures []string `mapstructure:"olcp_features" yaml:"olcp_features" validate:"dive,oneof=goto order request_number_of_objects clear_marking"`

	// DefaultProperties are given to created and imported objects
	DefaultProperties []string `mapstructure:"default_properties" yaml:"default_properties" validate:"dive,oneof=delete execute read write append truncate patch mark"`

	// CreatableTypes restricts OACP Create to these object types (hex
	// UUID16/UUID32 or a full UUID). Empty allows any type.
	CreatableTypes []string `mapstructure:"creatable_types" yaml:"creatable_types" validate:"dive,objecttype"`

	// MaxBondedSessions is the number of bonded clients whose list view
	// survives a disconnect
	MaxBondedSessions int `mapstructure:"max_bonded_sessions" yaml:"max_bonded_sessions" validate:"min=0"`
}

// ContentConfig selects the content store.
type ContentConfig struct {
	// Type is filesystem, memory or s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem is used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// Memory is used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// S3 is used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`

	// WriteBuffer coalesces chunked object writes before they reach the
	// store.
	WriteBuffer WriteBufferConfig `mapstructure:"write_buffer" yaml:"write_buffer"`
}

// WriteBufferConfig controls the write-back buffer in front of the
// content store.
type WriteBufferConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxSizeBytes flushes an object's buffered window at this size
	MaxSizeBytes int64 `mapstructure:"max_size_bytes" yaml:"max_size_bytes" validate:"gte=0"`
}

// CatalogConfig selects the object catalog.
type CatalogConfig struct {
	// Type is memory, badger or leveldb
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger leveldb"`

	// Badger is used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// LevelDB is used when Type = "leveldb"
	LevelDB map[string]any `mapstructure:"leveldb" yaml:"leveldb"`
}

// AdaptersConfig contains all transport configurations.
type AdaptersConfig struct {
	// TCP uses the adapter's own configuration type directly
	TCP tcp.TCPConfig `mapstructure:"tcp" yaml:"tcp"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
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

// setupViper configures environment overrides and the config file search.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variables only override keys viper knows about, so
	// register every key with its zero value. Defaults proper are applied
	// after unmarshalling.
	for _, key := range envKeys {
		v.SetDefault(key, nil)
	}
	// The adapter stays on unless a file or the environment turns it off,
	// even when only its port is set.
	v.SetDefault("adapters.tcp.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	// $XDG_CONFIG_HOME/dittoots/config.{yaml,toml}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// envKeys are the scalar settings that can be set from the environment
// without a config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"ots.capacity",
	"ots.max_object_size",
	"ots.max_chunk_size",
	"ots.max_bonded_sessions",
	"content.type",
	"content.write_buffer.enabled",
	"content.write_buffer.max_size_bytes",
	"catalog.type",
	"gc.enabled",
	"gc.schedule",
	"gc.batch_size",
	"gc.dry_run",
	"importer.enabled",
	"importer.dir",
	"importer.default_type",
	"adapters.tcp.enabled",
	"adapters.tcp.bind_address",
	"adapters.tcp.port",
	"adapters.tcp.max_connections",
	"adapters.tcp.channel_credits",
}

// readConfigFile reads the configuration file if one exists. A missing
// file at the default location is not an error.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/dittoots, ~/.config/dittoots, or
// the current directory when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoots")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittoots")
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

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
