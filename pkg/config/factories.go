package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/gc"
	"github.com/marmos91/dittoots/pkg/importer"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// ConfigureLogging applies the logging section to the process logger.
func ConfigureLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	if err := logger.SetFormat(cfg.Format); err != nil {
		return err
	}
	return logger.SetOutput(cfg.Output)
}

// EngineConfig converts the ots section into the engine's configuration.
//
// Names are matched case-sensitively; Validate has already rejected
// unknown ones, so an error here means the section was never validated.
func EngineConfig(cfg *OTSConfig) (engine.Config, error) {
	ec := engine.Config{
		Capacity:          cfg.Capacity,
		MaxObjectSize:     cfg.MaxObjectSize,
		MaxChunkSize:      cfg.MaxChunkSize,
		MaxBondedSessions: cfg.MaxBondedSessions,
	}

	for _, name := range cfg.OACPFeatures {
		f, ok := ots.ParseOACPFeature(name)
		if !ok {
			return engine.Config{}, fmt.Errorf("unknown OACP feature %q", name)
		}
		ec.Features.OACP |= f
	}
	for _, name := range cfg.OLCPFeatures {
		f, ok := ots.ParseOLCPFeature(name)
		if !ok {
			return engine.Config{}, fmt.Errorf("unknown OLCP feature %q", name)
		}
		ec.Features.OLCP |= f
	}
	// The engine reads an all-zero feature set as "everything".
	if ec.Features == (ots.Features{}) && (cfg.OACPFeatures != nil || cfg.OLCPFeatures != nil) {
		logger.Warn("Empty OACP and OLCP feature lists: every feature stays enabled")
	}

	for _, name := range cfg.DefaultProperties {
		p, ok := ots.ParseProperty(name)
		if !ok {
			return engine.Config{}, fmt.Errorf("unknown object property %q", name)
		}
		ec.DefaultProperties |= p
	}

	for _, s := range cfg.CreatableTypes {
		t, err := ots.ParseObjectType(s)
		if err != nil {
			return engine.Config{}, err
		}
		ec.CreatableTypes = append(ec.CreatableTypes, t)
	}

	return ec, nil
}

// CreateEngine builds the engine over its stores and restores the saved
// objects from the catalog.
//
// Parameters:
//   - ctx: Context for the catalog restore
//   - cfg: Complete configuration (ots section)
//   - cs: Content store holding object bytes
//   - cat: Object catalog (nil = nothing persisted)
//   - m: Engine metrics (nil = none)
//
// Returns:
//   - *engine.Engine: Engine holding every restored object
//   - error: Invalid ots section, engine setup or catalog read failure
func CreateEngine(ctx context.Context, cfg *Config, cs content.WritableContentStore, cat catalog.Catalog, m engine.Metrics) (*engine.Engine, error) {
	ec, err := EngineConfig(&cfg.OTS)
	if err != nil {
		return nil, fmt.Errorf("invalid ots config: %w", err)
	}

	opts := []engine.Option{engine.WithMetrics(m)}
	if cat != nil {
		opts = append(opts, engine.WithCatalog(cat))
	}

	e, err := engine.New(ec, cs, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	n, err := e.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore catalog: %w", err)
	}
	logger.Info("Engine ready: capacity=%d restored=%d max_chunk=%d",
		ec.Capacity, n, e.Config().MaxChunkSize)

	return e, nil
}

// CreateCollector builds the orphaned content collector for e.
func CreateCollector(cfg *Config, e *engine.Engine, cs content.ContentStore) (*gc.Collector, error) {
	c, err := gc.NewCollector(e, cs, cfg.GC)
	if err != nil {
		return nil, fmt.Errorf("failed to create garbage collector: %w", err)
	}
	return c, nil
}

// CreateImporter builds the inbox importer for e, or returns nil when the
// importer is disabled.
func CreateImporter(cfg *Config, e *engine.Engine) (*importer.Importer, error) {
	if !cfg.Importer.Enabled {
		return nil, nil
	}
	im, err := importer.New(e, cfg.Importer)
	if err != nil {
		return nil, fmt.Errorf("failed to create importer: %w", err)
	}
	return im, nil
}
