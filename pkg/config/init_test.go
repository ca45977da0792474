package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInitConfig_WritesDefaultFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := InitConfig(false)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfigPath(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	body := string(data)
	for _, section := range []string{
		"# DittoOTS Configuration File",
		"logging:",
		"ots:",
		"content:",
		"catalog:",
		"gc:",
		"importer:",
		"adapters:",
	} {
		assert.Contains(t, body, section)
	}

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := InitConfig(false)
	require.NoError(t, err)

	_, err = InitConfig(false)
	assert.ErrorContains(t, err, "already exists")

	_, err = InitConfig(true)
	assert.NoError(t, err)
}

func TestInitConfigToPath_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, InitConfigToPath(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := GetDefaultConfig()
	assert.Equal(t, want.OTS, cfg.OTS)
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.GC, cfg.GC)
	assert.Equal(t, want.Adapters.TCP, cfg.Adapters.TCP)
	assert.Equal(t, want.Catalog.Type, cfg.Catalog.Type)
}
