package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	catalogbadger "github.com/marmos91/dittoots/pkg/store/catalog/badger"
	catalogleveldb "github.com/marmos91/dittoots/pkg/store/catalog/leveldb"
	catalogmemory "github.com/marmos91/dittoots/pkg/store/catalog/memory"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/marmos91/dittoots/pkg/store/content/cache"
	contentfs "github.com/marmos91/dittoots/pkg/store/content/fs"
	contentmemory "github.com/marmos91/dittoots/pkg/store/content/memory"
	contents3 "github.com/marmos91/dittoots/pkg/store/content/s3"
	"github.com/mitchellh/mapstructure"
)

// ============================================================================
// Content stores
// ============================================================================

// CreateContentStore creates the content store selected by cfg.Type,
// decoding only the matching backend section, and puts the write buffer
// in front of it when enabled.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Content store configuration
//   - m: Optional metrics (nil = none)
//
// Returns:
//   - content.Store: Initialized content store, a *cache.BufferedStore
//     when the write buffer is enabled
//   - error: Configuration or initialization error
func CreateContentStore(ctx context.Context, cfg *ContentConfig, m *MetricsResult) (content.Store, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	var (
		store content.Store
		err   error
	)
	switch cfg.Type {
	case "filesystem":
		store, err = createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		store, err = createMemoryContentStore(ctx, cfg.Memory)
	case "s3":
		store, err = createS3ContentStore(ctx, cfg.S3, m.S3)
	default:
		return nil, fmt.Errorf("unknown content store type: %q (supported: filesystem, memory, s3)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.WriteBuffer.Enabled {
		return store, nil
	}
	logger.Debug("Write buffer enabled: max_size=%d", cfg.WriteBuffer.MaxSizeBytes)
	return cache.NewBufferedStore(store, cache.Config{
		MaxBufferSize: cfg.WriteBuffer.MaxSizeBytes,
		Metrics:       m.Cache,
	}), nil
}

func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var storeCfg struct {
		Path string `mapstructure:"path"`
	}
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentfs.NewFSContentStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}
	logger.Info("Filesystem content store at %s", storeCfg.Path)
	return store, nil
}

func createMemoryContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var storeCfg struct {
		MaxSizeBytes uint64 `mapstructure:"max_size_bytes"`
	}
	if err := decodeWeak(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory content store config: %w", err)
	}

	var opts []contentmemory.Option
	if storeCfg.MaxSizeBytes > 0 {
		opts = append(opts, contentmemory.WithMaxSize(storeCfg.MaxSizeBytes))
	}

	store, err := contentmemory.NewMemoryContentStore(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory content store: %w", err)
	}
	logger.Warn("Memory content store in use: object content is lost on restart")
	return store, nil
}

// s3StoreConfig is the content.s3 section.
type s3StoreConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

func createS3ContentStore(ctx context.Context, options map[string]any, m contents3.S3Metrics) (content.Store, error) {
	var storeCfg s3StoreConfig
	if err := decodeWeak(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := contents3.NewS3ContentStore(ctx, contents3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)
	return store, nil
}

// newS3Client builds an S3 client from the static settings, falling back
// to the default AWS credential chain when no keys are given.
func newS3Client(ctx context.Context, cfg s3StoreConfig) (*awss3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			// MinIO and Localstack
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// ============================================================================
// Catalogs
// ============================================================================

// CreateCatalog opens the object catalog selected by cfg.Type.
//
// Supported types:
//   - "memory": nothing survives a restart
//   - "badger": BadgerDB directory
//   - "leveldb": LevelDB directory
func CreateCatalog(ctx context.Context, cfg *CatalogConfig) (catalog.Catalog, error) {
	switch cfg.Type {
	case "memory":
		return catalogmemory.NewMemoryCatalog(), nil
	case "badger":
		return createBadgerCatalog(ctx, cfg.Badger)
	case "leveldb":
		return createLevelDBCatalog(ctx, cfg.LevelDB)
	default:
		return nil, fmt.Errorf("unknown catalog type: %q (supported: memory, badger, leveldb)", cfg.Type)
	}
}

func createBadgerCatalog(ctx context.Context, options map[string]any) (catalog.Catalog, error) {
	var storeCfg struct {
		DBPath   string `mapstructure:"db_path"`
		InMemory bool   `mapstructure:"in_memory"`
	}
	if err := decodeWeak(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger catalog config: %w", err)
	}
	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger catalog: db_path is required")
	}

	c, err := catalogbadger.NewBadgerCatalog(ctx, catalogbadger.BadgerCatalogConfig{
		DBPath:   storeCfg.DBPath,
		InMemory: storeCfg.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger catalog: %w", err)
	}
	return c, nil
}

func createLevelDBCatalog(ctx context.Context, options map[string]any) (catalog.Catalog, error) {
	var storeCfg struct {
		Path string `mapstructure:"path"`
	}
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode leveldb catalog config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("leveldb catalog: path is required")
	}

	c, err := catalogleveldb.NewLevelDBCatalog(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create leveldb catalog: %w", err)
	}
	return c, nil
}

// decodeWeak decodes a backend section, accepting the string forms that
// environment variables and TOML produce ("true", "1048576", "30s").
func decodeWeak(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}
