// Package gc removes orphaned object content.
//
// Content becomes orphaned when an object disappears without its bytes
// following it: a crash between deleting the object record and deleting
// the content, a failed delete on a remote backend, or a catalog restored
// from an older snapshot. The collector compares every ContentID in the
// content store with the objects the engine currently holds and deletes
// the difference in batches.
//
// Runs are scheduled with a cron expression and never overlap.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/robfig/cron/v3"
)

// Defaults applied by Config.applyDefaults.
const (
	DefaultSchedule  = "@daily"
	DefaultBatchSize = 1000
	DefaultTimeout   = 10 * time.Minute
)

// ErrAlreadyRunning is returned by RunNow while another run is active.
var ErrAlreadyRunning = errors.New("garbage collection already running")

// ReferenceSource reports the content that is still in use.
// *engine.Engine satisfies it.
type ReferenceSource interface {
	ContentIDs() map[content.ContentID]struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether scheduled collection runs at all
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Schedule is a standard 5-field cron expression or a descriptor such
	// as "@hourly" or "@every 30m"
	Schedule string `mapstructure:"schedule" yaml:"schedule"`

	// BatchSize is how many orphans are deleted per DeleteBatch call.
	// S3 accepts at most 1000 keys per DeleteObjects request.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" validate:"min=0,max=1000"`

	// DryRun logs what would be deleted without deleting anything
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// RunOnStart triggers one collection as soon as Run is called
	RunOnStart bool `mapstructure:"run_on_start" yaml:"run_on_start"`

	// Timeout bounds a single scheduled run
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Collector performs scheduled garbage collection on a content store.
//
// Thread Safety: Safe for concurrent use. At most one run is active at a
// time; overlapping triggers are skipped.
type Collector struct {
	refs     ReferenceSource
	store    content.GarbageCollectableStore
	config   Config
	schedule cron.Schedule
	running  atomic.Bool
}

// NewCollector creates a garbage collector. Call Run to start the
// schedule.
//
// Parameters:
//   - refs: Source of referenced ContentIDs (normally the engine)
//   - store: Content store to scan; must implement GarbageCollectableStore
//   - config: Garbage collection configuration
//
// Returns:
//   - *Collector: Initialized collector (not started)
//   - error: If the store cannot be collected or the schedule is invalid
func NewCollector(refs ReferenceSource, store content.ContentStore, config Config) (*Collector, error) {
	if refs == nil {
		return nil, errors.New("garbage collector requires a reference source")
	}
	gcStore, ok := store.(content.GarbageCollectableStore)
	if !ok {
		return nil, fmt.Errorf("content store does not implement GarbageCollectableStore interface")
	}

	config.applyDefaults()

	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid gc schedule %q: %w", config.Schedule, err)
	}

	return &Collector{
		refs:     refs,
		store:    gcStore,
		config:   config,
		schedule: schedule,
	}, nil
}

// Config returns the effective configuration.
func (c *Collector) Config() Config {
	return c.config
}

// Next returns the next scheduled run after t.
func (c *Collector) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// Run drives the cron schedule until ctx is cancelled, then waits for an
// in-progress collection to finish. With collection disabled it only waits
// for cancellation.
func (c *Collector) Run(ctx context.Context) error {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		<-ctx.Done()
		return nil
	}

	scheduler := cron.New()
	scheduler.Schedule(c.schedule, cron.FuncJob(func() { c.scheduled(ctx) }))

	logger.Info("Starting garbage collector: schedule=%q batch_size=%d dry_run=%v next=%s",
		c.config.Schedule, c.config.BatchSize, c.config.DryRun,
		c.Next(time.Now()).Format(time.RFC3339))

	var initial sync.WaitGroup
	if c.config.RunOnStart {
		initial.Add(1)
		go func() {
			defer initial.Done()
			c.scheduled(ctx)
		}()
	}

	scheduler.Start()
	<-ctx.Done()

	logger.Info("Stopping garbage collector...")
	<-scheduler.Stop().Done()
	initial.Wait()
	logger.Info("Garbage collector stopped")
	return nil
}

func (c *Collector) scheduled(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, c.config.Timeout)
	defer cancel()

	stats, err := c.RunNow(ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		logger.Warn("GC: skipped, previous run still active")
	case err != nil:
		logger.Error("Garbage collection failed: %v", err)
	default:
		logger.Info("Garbage collection completed: %s", stats.Summary())
	}
}

// RunNow performs one collection immediately and blocks until it ends.
//
// Returns:
//   - *Stats: Collection statistics (partial when err != nil)
//   - error: ErrAlreadyRunning, listing failures or context cancellation
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	return c.collect(ctx)
}

// collect lists the store before asking for references, so content
// written by an object created during the run is never seen as orphaned.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	existing, err := c.store.ListAllContent(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list content: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	referenced := c.refs.ContentIDs()
	stats.ReferencedCount = uint64(len(referenced))

	logger.Debug("GC: %d stored items, %d referenced", stats.ExistingCount, stats.ReferencedCount)

	var orphaned []content.ContentID
	for _, id := range existing {
		if _, ok := referenced[id]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	stats.OrphanedCount = uint64(len(orphaned))

	if len(orphaned) == 0 {
		logger.Debug("GC: No orphaned content found")
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would delete %d items:", stats.OrphanedCount)
		for i, id := range orphaned {
			if i == 10 {
				logger.Info("  ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("  - %s", id)
		}
		return stats, nil
	}

	for start := 0; start < len(orphaned); start += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := min(start+c.config.BatchSize, len(orphaned))
		batch := orphaned[start:end]

		failures, err := c.store.DeleteBatch(ctx, batch)
		if err != nil {
			logger.Warn("GC: Batch delete failed: %v", err)
			stats.FailedCount += uint64(len(batch))
			continue
		}

		stats.DeletedCount += uint64(len(batch) - len(failures))
		stats.FailedCount += uint64(len(failures))
		for id, ferr := range failures {
			logger.Debug("GC: Failed to delete %s: %v", id, ferr)
		}
	}

	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	ReferencedCount uint64 // ContentIDs of live objects
	ExistingCount   uint64 // ContentIDs in the content store
	OrphanedCount   uint64
	DeletedCount    uint64
	FailedCount     uint64
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("referenced=%d existing=%d orphaned=%d deleted=%d failed=%d duration=%s",
		s.ReferencedCount, s.ExistingCount, s.OrphanedCount,
		s.DeletedCount, s.FailedCount, s.Duration())
}
