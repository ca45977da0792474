package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_MinimalFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: "info"

content:
  type: "memory"

catalog:
  type: "memory"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, engine.DefaultCapacity, cfg.OTS.Capacity)
	assert.True(t, cfg.Adapters.TCP.Enabled)
	assert.Equal(t, tcp.DefaultPort, cfg.Adapters.TCP.Port)
	assert.Equal(t, "memory", cfg.Content.Type)
	assert.Equal(t, "memory", cfg.Catalog.Type)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: "DEBUG"
  format: "json"
  output: "stderr"

server:
  shutdown_timeout: 10s
  metrics:
    enabled: true
    port: 9191

ots:
  capacity: 16
  max_object_size: 4096
  max_chunk_size: 128
  oacp_features: [create, read, write]
  olcp_features: [goto]
  default_properties: [read, write, delete]
  creatable_types: ["0x2ACA"]

content:
  type: "filesystem"
  filesystem:
    path: "/tmp/ots-content"

catalog:
  type: "leveldb"
  leveldb:
    path: "/tmp/ots-catalog"

gc:
  enabled: true
  schedule: "@every 1h"
  batch_size: 50

adapters:
  tcp:
    enabled: true
    port: 7001
    max_connections: 4
    idle_timeout: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Server.Metrics.Enabled)
	assert.Equal(t, 9191, cfg.Server.Metrics.Port)
	assert.Equal(t, 16, cfg.OTS.Capacity)
	assert.Equal(t, uint32(4096), cfg.OTS.MaxObjectSize)
	assert.Equal(t, []string{"create", "read", "write"}, cfg.OTS.OACPFeatures)
	assert.Equal(t, []string{"0x2ACA"}, cfg.OTS.CreatableTypes)
	assert.Equal(t, "/tmp/ots-content", cfg.Content.Filesystem["path"])
	assert.Equal(t, "leveldb", cfg.Catalog.Type)
	assert.Equal(t, "@every 1h", cfg.GC.Schedule)
	assert.Equal(t, 50, cfg.GC.BatchSize)
	assert.Equal(t, 7001, cfg.Adapters.TCP.Port)
	assert.Equal(t, 4, cfg.Adapters.TCP.MaxConnections)
	assert.Equal(t, 2*time.Minute, cfg.Adapters.TCP.IdleTimeout)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[logging]
level = "warn"

[content]
type = "memory"

[catalog]
type = "memory"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
content:
  type: "memory"
catalog:
  type: "memory"
`)

	t.Setenv("DITTOOTS_LOGGING_LEVEL", "error")
	t.Setenv("DITTOOTS_ADAPTERS_TCP_PORT", "7500")
	t.Setenv("DITTOOTS_OTS_CAPACITY", "32")
	t.Setenv("DITTOOTS_CONTENT_WRITE_BUFFER_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, 7500, cfg.Adapters.TCP.Port)
	assert.Equal(t, 32, cfg.OTS.Capacity)
	assert.True(t, cfg.Content.WriteBuffer.Enabled)
}

func TestLoad_TCPEnabled(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		env     map[string]string
		enabled bool
		port    int
	}{
		{
			name:    "section absent",
			enabled: true,
			port:    tcp.DefaultPort,
		},
		{
			name: "only port in file",
			body: `
adapters:
  tcp:
    port: 7100
`,
			enabled: true,
			port:    7100,
		},
		{
			name:    "only port in environment",
			env:     map[string]string{"DITTOOTS_ADAPTERS_TCP_PORT": "7200"},
			enabled: true,
			port:    7200,
		},
		{
			name: "explicitly disabled in file",
			body: `
adapters:
  tcp:
    enabled: false
    port: 7100
`,
			enabled: false,
			port:    7100,
		},
		{
			name:    "disabled from environment",
			env:     map[string]string{"DITTOOTS_ADAPTERS_TCP_ENABLED": "false"},
			enabled: false,
			port:    tcp.DefaultPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", `
content:
  type: "memory"
catalog:
  type: "memory"
`+tt.body)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			v := viper.New()
			setupViper(v, path)
			require.NoError(t, v.ReadInConfig())

			var cfg Config
			require.NoError(t, v.Unmarshal(&cfg))
			ApplyDefaults(&cfg)

			assert.Equal(t, tt.enabled, cfg.Adapters.TCP.Enabled)
			assert.Equal(t, tt.port, cfg.Adapters.TCP.Port)

			if tt.enabled {
				loaded, err := Load(path)
				require.NoError(t, err)
				assert.True(t, loaded.Adapters.TCP.Enabled)
				assert.Equal(t, tt.port, loaded.Adapters.TCP.Port)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "malformed yaml",
			body: "logging: [unclosed",
		},
		{
			name: "bad log level",
			body: "logging:\n  level: LOUD\n",
		},
		{
			name: "unknown content store",
			body: "content:\n  type: floppy\n",
		},
		{
			name: "unknown oacp feature",
			body: "ots:\n  oacp_features: [teleport]\n",
		},
		{
			name: "directory listing creatable",
			body: "ots:\n  creatable_types: [\"0x2ACB\"]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.body))
			assert.Error(t, err)
		})
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "dittoots"), GetConfigDir())
	assert.Equal(t, filepath.Join(dir, "dittoots", "config.yaml"), GetDefaultConfigPath())
	assert.False(t, ConfigExists())
}
