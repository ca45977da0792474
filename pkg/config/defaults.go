package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/marmos91/dittoots/pkg/gc"
	"github.com/marmos91/dittoots/pkg/importer"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
	"github.com/marmos91/dittoots/pkg/store/content/cache"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
// Backend-specific maps get defaults for every backend so that a
// generated config file documents all of them.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyOTSDefaults(&cfg.OTS)
	applyContentDefaults(&cfg.Content)
	applyCatalogDefaults(&cfg.Catalog)
	applyGCDefaults(&cfg.GC)
	applyImporterDefaults(&cfg.Importer)
	applyAdaptersDefaults(&cfg.Adapters)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyOTSDefaults(cfg *OTSConfig) {
	if cfg.Capacity == 0 {
		cfg.Capacity = engine.DefaultCapacity
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = transfer.DefaultMaxChunk
	}
	if cfg.MaxBondedSessions == 0 {
		cfg.MaxBondedSessions = engine.DefaultMaxBondedSessions
	}
	if cfg.OACPFeatures == nil {
		cfg.OACPFeatures = []string{"create", "delete", "checksum", "execute", "read", "write", "append", "truncate", "patch", "abort"}
	}
	if cfg.OLCPFeatures == nil {
		cfg.OLCPFeatures = []string{"goto", "order", "request_number_of_objects", "clear_marking"}
	}
	if cfg.DefaultProperties == nil {
		cfg.DefaultProperties = engine.DefaultProperties.Names()
	}
	if cfg.CreatableTypes == nil {
		cfg.CreatableTypes = []string{}
	}
}

func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(defaultDataDir(), "content")
	}
	if _, ok := cfg.Memory["max_size_bytes"]; !ok {
		cfg.Memory["max_size_bytes"] = uint64(1 << 30) // 1GB
	}

	// Enabled stays as configured
	if cfg.WriteBuffer.MaxSizeBytes == 0 {
		cfg.WriteBuffer.MaxSizeBytes = cache.DefaultMaxBufferSize
	}
}

func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.LevelDB == nil {
		cfg.LevelDB = make(map[string]any)
	}

	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join(defaultDataDir(), "catalog")
	}
	if _, ok := cfg.LevelDB["path"]; !ok {
		cfg.LevelDB["path"] = filepath.Join(defaultDataDir(), "catalog.ldb")
	}
}

func applyGCDefaults(cfg *gc.Config) {
	// Enabled stays as configured
	if cfg.Schedule == "" {
		cfg.Schedule = gc.DefaultSchedule
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = gc.DefaultBatchSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = gc.DefaultTimeout
	}
}

func applyImporterDefaults(cfg *importer.Config) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(defaultDataDir(), "inbox")
	}
	if cfg.DefaultType == "" {
		cfg.DefaultType = ots.UnspecifiedType.String()
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = importer.DefaultDebounce
	}
}

func applyAdaptersDefaults(cfg *AdaptersConfig) {
	applyTCPDefaults(&cfg.TCP)
}

func applyTCPDefaults(cfg *tcp.TCPConfig) {
	if cfg.Port == 0 {
		cfg.Port = tcp.DefaultPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ChannelCredits == 0 {
		cfg.ChannelCredits = 8
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
}

// defaultDataDir is where persistent state lives unless configured.
func defaultDataDir() string {
	return filepath.Join(getConfigDir(), "data")
}

// GetDefaultConfig returns a Config with all default values applied.
// Used to generate sample configuration files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			TCP: tcp.TCPConfig{Enabled: true},
		},
		Content: ContentConfig{
			WriteBuffer: WriteBufferConfig{Enabled: true},
		},
		GC: gc.Config{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
