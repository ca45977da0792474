package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/content/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineConfig(t *testing.T) {
	cfg := OTSConfig{
		Capacity:          10,
		MaxObjectSize:     2048,
		MaxChunkSize:      100,
		MaxBondedSessions: 2,
		OACPFeatures:      []string{"create", "read"},
		OLCPFeatures:      []string{"goto", "clear_marking"},
		DefaultProperties: []string{"read", "delete"},
		CreatableTypes:    []string{"0x2ACA", "0x0001ABCD"},
	}

	ec, err := EngineConfig(&cfg)
	require.NoError(t, err)

	assert.Equal(t, 10, ec.Capacity)
	assert.Equal(t, uint32(2048), ec.MaxObjectSize)
	assert.Equal(t, 100, ec.MaxChunkSize)
	assert.Equal(t, 2, ec.MaxBondedSessions)
	assert.Equal(t, ots.OACPFeatureCreate|ots.OACPFeatureRead, ec.Features.OACP)
	assert.Equal(t, ots.OLCPFeatureGoTo|ots.OLCPFeatureClearMarking, ec.Features.OLCP)
	assert.Equal(t, ots.PropertyRead|ots.PropertyDelete, ec.DefaultProperties)
	require.Len(t, ec.CreatableTypes, 2)
	assert.True(t, ec.CreatableTypes[0].Equal(ots.UnspecifiedType))
	assert.Equal(t, "0x0001ABCD", ec.CreatableTypes[1].String())
}

func TestEngineConfig_UnknownNames(t *testing.T) {
	tests := []struct {
		name string
		cfg  OTSConfig
	}{
		{"oacp", OTSConfig{OACPFeatures: []string{"Create"}}},
		{"olcp", OTSConfig{OLCPFeatures: []string{"sort"}}},
		{"property", OTSConfig{DefaultProperties: []string{"hide"}}},
		{"type", OTSConfig{CreatableTypes: []string{"nope"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EngineConfig(&tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCreateContentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cs, err := CreateContentStore(ctx, &ContentConfig{
			Type:   "memory",
			Memory: map[string]any{"max_size_bytes": "1048576"},
		}, nil)
		require.NoError(t, err)
		assert.NotNil(t, cs)
	})

	t.Run("filesystem", func(t *testing.T) {
		cs, err := CreateContentStore(ctx, &ContentConfig{
			Type:       "filesystem",
			Filesystem: map[string]any{"path": t.TempDir()},
		}, nil)
		require.NoError(t, err)
		assert.NotNil(t, cs)
	})

	t.Run("write buffer", func(t *testing.T) {
		cs, err := CreateContentStore(ctx, &ContentConfig{
			Type:        "memory",
			WriteBuffer: WriteBufferConfig{Enabled: true, MaxSizeBytes: 4096},
		}, &MetricsResult{})
		require.NoError(t, err)
		_, ok := cs.(*cache.BufferedStore)
		assert.True(t, ok)
	})

	t.Run("filesystem without path", func(t *testing.T) {
		_, err := CreateContentStore(ctx, &ContentConfig{Type: "filesystem"}, nil)
		assert.ErrorContains(t, err, "path is required")
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		_, err := CreateContentStore(ctx, &ContentConfig{
			Type: "s3",
			S3:   map[string]any{"region": "us-east-1"},
		}, nil)
		assert.ErrorContains(t, err, "bucket is required")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := CreateContentStore(ctx, &ContentConfig{Type: "tape"}, nil)
		assert.ErrorContains(t, err, "unknown content store type")
	})
}

func TestCreateCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		c, err := CreateCatalog(ctx, &CatalogConfig{Type: "memory"})
		require.NoError(t, err)
		assert.NoError(t, c.Close())
	})

	t.Run("badger", func(t *testing.T) {
		c, err := CreateCatalog(ctx, &CatalogConfig{
			Type:   "badger",
			Badger: map[string]any{"db_path": filepath.Join(t.TempDir(), "catalog")},
		})
		require.NoError(t, err)
		assert.NoError(t, c.Close())
	})

	t.Run("leveldb", func(t *testing.T) {
		c, err := CreateCatalog(ctx, &CatalogConfig{
			Type:    "leveldb",
			LevelDB: map[string]any{"path": filepath.Join(t.TempDir(), "catalog.ldb")},
		})
		require.NoError(t, err)
		assert.NoError(t, c.Close())
	})

	t.Run("badger without path", func(t *testing.T) {
		_, err := CreateCatalog(ctx, &CatalogConfig{Type: "badger"})
		assert.ErrorContains(t, err, "db_path is required")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := CreateCatalog(ctx, &CatalogConfig{Type: "sqlite"})
		assert.ErrorContains(t, err, "unknown catalog type")
	})
}

func TestCreateEngine_RestoresCatalog(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()

	cs, err := CreateContentStore(ctx, &ContentConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	cat, err := CreateCatalog(ctx, &CatalogConfig{Type: "memory"})
	require.NoError(t, err)

	e, err := CreateEngine(ctx, cfg, cs, cat, nil)
	require.NoError(t, err)

	id, err := e.Import(ctx, "hello.txt", ots.UnspecifiedType, []byte("hello"))
	require.NoError(t, err)

	// A second engine over the same stores sees the imported object.
	e2, err := CreateEngine(ctx, cfg, cs, cat, nil)
	require.NoError(t, err)
	obj, ok := e2.Object(id)
	require.True(t, ok)
	assert.Equal(t, "hello.txt", obj.Name)
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	adapters, err := CreateAdapters(cfg, nil)
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.Equal(t, "OTS-TCP", adapters[0].Protocol())

	cfg.Adapters.TCP.Enabled = false
	_, err = CreateAdapters(cfg, nil)
	assert.Error(t, err)
}

func TestCreateImporter_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()
	im, err := CreateImporter(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, im)
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	m := InitializeMetrics(GetDefaultConfig())
	assert.Nil(t, m.Server)
	assert.Nil(t, m.OTS)
	assert.Nil(t, m.S3)
	assert.Nil(t, m.TCP)
}

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() {
		logger.SetLevel("INFO")
		_ = logger.SetFormat("text")
		_ = logger.SetOutput("stdout")
	})

	require.NoError(t, ConfigureLogging(&LoggingConfig{Level: "DEBUG", Format: "text", Output: "stderr"}))
	assert.True(t, logger.Enabled(logger.LevelDebug))

	assert.Error(t, ConfigureLogging(&LoggingConfig{Level: "INFO", Format: "yaml", Output: "stdout"}))
}
