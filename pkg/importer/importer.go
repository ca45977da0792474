// Package importer publishes files dropped into an inbox directory as OTS
// objects.
//
// Every regular file in the inbox becomes one object named after the file.
// Rewriting a file replaces the object (new ID, Object Changed deletion
// then creation); deleting a file removes the object when RemoveOnDelete is
// set. Hidden files and subdirectories are ignored.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
)

// DefaultDebounce is how long a file must stay quiet before it is
// imported.
const DefaultDebounce = 500 * time.Millisecond

// Target receives imported objects. *engine.Engine satisfies it.
type Target interface {
	Import(ctx context.Context, name string, typ ots.ObjectType, data []byte) (ots.ObjectID, error)
	Remove(ctx context.Context, id ots.ObjectID) error
	Objects() []store.Object
}

// Config configures the inbox importer.
type Config struct {
	// Enabled turns the importer on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Dir is the inbox directory; created when missing
	Dir string `mapstructure:"dir" yaml:"dir" validate:"required_if=Enabled true"`

	// DefaultType is the object type given to imported files, as a
	// 16-bit or 32-bit hex UUID or a full 128-bit UUID. Default: 0x2ACA
	DefaultType string `mapstructure:"default_type" yaml:"default_type"`

	// RemoveOnDelete removes the object when its file is deleted
	RemoveOnDelete bool `mapstructure:"remove_on_delete" yaml:"remove_on_delete"`

	// Debounce delays the import of a file until writes settle
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" validate:"min=0"`
}

// Importer watches one inbox directory.
type Importer struct {
	target   Target
	dir      string
	typ      ots.ObjectType
	remove   bool
	debounce time.Duration

	mu       sync.Mutex
	imported map[string]ots.ObjectID // file name -> object
	timers   map[string]*time.Timer
	wg       sync.WaitGroup
}

// New validates cfg and creates an importer. Call Run to start watching.
func New(target Target, cfg Config) (*Importer, error) {
	if target == nil {
		return nil, errors.New("importer requires a target")
	}
	if cfg.Dir == "" {
		return nil, errors.New("importer dir is required")
	}

	typ := ots.UnspecifiedType
	if cfg.DefaultType != "" {
		t, err := ots.ParseObjectType(cfg.DefaultType)
		if err != nil {
			return nil, fmt.Errorf("importer default_type: %w", err)
		}
		if t.Equal(ots.DirectoryListingType) {
			return nil, errors.New("importer default_type cannot be the directory listing type")
		}
		typ = t
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Importer{
		target:   target,
		dir:      cfg.Dir,
		typ:      typ,
		remove:   cfg.RemoveOnDelete,
		debounce: debounce,
		imported: make(map[string]ots.ObjectID),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run imports the files already in the inbox, then follows changes until
// ctx is cancelled.
func (im *Importer) Run(ctx context.Context) error {
	if err := os.MkdirAll(im.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", im.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(im.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", im.dir, err)
	}

	im.adopt()
	if err := im.scan(ctx); err != nil {
		return err
	}
	logger.Info("Watching inbox %s for new objects", im.dir)

	defer im.drain()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping inbox importer")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			im.handle(ctx, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Inbox watcher error: %v", err)
		}
	}
}

// Imported returns the object published for a file name.
func (im *Importer) Imported(name string) (ots.ObjectID, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	id, ok := im.imported[name]
	return id, ok
}

// adopt links files to objects restored from the catalog, so a restart
// does not publish the same file twice.
func (im *Importer) adopt() {
	im.mu.Lock()
	defer im.mu.Unlock()

	for _, obj := range im.target.Objects() {
		if obj.IsDirectory() {
			continue
		}
		if _, err := os.Stat(filepath.Join(im.dir, obj.Name)); err == nil {
			im.imported[obj.Name] = obj.ID
		}
	}
}

func (im *Importer) scan(ctx context.Context) error {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox %s: %w", im.dir, err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || ignored(entry.Name()) {
			continue
		}
		if _, ok := im.Imported(entry.Name()); ok {
			continue
		}
		im.publish(ctx, entry.Name())
	}
	return nil
}

func (im *Importer) handle(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if ignored(name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		im.schedule(ctx, name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		im.cancel(name)
		if im.remove {
			im.unpublish(ctx, name)
		}
	}
}

func (im *Importer) schedule(ctx context.Context, name string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if t, ok := im.timers[name]; ok && t.Stop() {
		im.wg.Done()
	}
	im.wg.Add(1)
	im.timers[name] = time.AfterFunc(im.debounce, func() {
		defer im.wg.Done()
		im.mu.Lock()
		delete(im.timers, name)
		im.mu.Unlock()

		if ctx.Err() == nil {
			im.publish(ctx, name)
		}
	})
}

func (im *Importer) cancel(name string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if t, ok := im.timers[name]; ok {
		if t.Stop() {
			im.wg.Done()
		}
		delete(im.timers, name)
	}
}

// drain stops pending imports and waits for running ones.
func (im *Importer) drain() {
	im.mu.Lock()
	for name, t := range im.timers {
		if t.Stop() {
			im.wg.Done()
		}
		delete(im.timers, name)
	}
	im.mu.Unlock()
	im.wg.Wait()
}

// publish imports one file, replacing the object previously imported from
// it.
func (im *Importer) publish(ctx context.Context, name string) {
	path := filepath.Join(im.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if len(name) > ots.MaxNameLength {
		logger.Warn("Inbox: skipping %q, name longer than %d bytes", name, ots.MaxNameLength)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Inbox: failed to read %s: %v", path, err)
		return
	}

	im.unpublish(ctx, name)

	id, err := im.target.Import(ctx, name, im.typ, data)
	if err != nil {
		logger.Warn("Inbox: failed to import %s: %v", name, err)
		return
	}

	im.mu.Lock()
	im.imported[name] = id
	im.mu.Unlock()
	logger.Debug("Inbox: %s published as object %s", name, id)
}

func (im *Importer) unpublish(ctx context.Context, name string) {
	im.mu.Lock()
	id, ok := im.imported[name]
	delete(im.imported, name)
	im.mu.Unlock()

	if !ok {
		return
	}
	if err := im.target.Remove(ctx, id); err != nil {
		var serr *store.Error
		if errors.As(err, &serr) && serr.Code == store.ErrNotFound {
			return
		}
		logger.Warn("Inbox: failed to remove object %s for %s: %v", id, name, err)

		im.mu.Lock()
		im.imported[name] = id
		im.mu.Unlock()
	}
}

func ignored(name string) bool {
	return name == "" || strings.HasPrefix(name, ".")
}
