// Package badger provides a catalog backed by BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/catalog"
)

// BadgerCatalogConfig configures a BadgerCatalog.
type BadgerCatalogConfig struct {
	// DBPath is the directory holding the database files.
	DBPath string

	// InMemory runs Badger without touching disk. DBPath is ignored.
	InMemory bool

	// Options overrides the defaults entirely when set.
	Options *badgerdb.Options
}

// BadgerCatalog stores one key per record.
type BadgerCatalog struct {
	db *badgerdb.DB
}

var _ catalog.Catalog = (*BadgerCatalog)(nil)

// NewBadgerCatalog opens (or creates) the database described by config.
func NewBadgerCatalog(ctx context.Context, config BadgerCatalogConfig) (*BadgerCatalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	switch {
	case config.Options != nil:
		opts = *config.Options
	case config.InMemory:
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	default:
		if config.DBPath == "" {
			return nil, errors.New("badger catalog requires a db path")
		}
		opts = badgerdb.DefaultOptions(config.DBPath)
	}

	// Records are a few dozen bytes each
	opts = opts.WithLoggingLevel(badgerdb.WARNING).WithCompression(options.None)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	logger.Debug("Opened badger catalog (path=%q, in_memory=%v)", config.DBPath, config.InMemory)
	return &BadgerCatalog{db: db}, nil
}

func (c *BadgerCatalog) Put(ctx context.Context, rec catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := catalog.EncodeRecord(rec)
	if err != nil {
		return err
	}
	return c.wrap(c.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(catalog.ObjectKey(rec.ID), data)
	}))
}

func (c *BadgerCatalog) Delete(ctx context.Context, id ots.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.wrap(c.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(catalog.ObjectKey(id))
	}))
}

func (c *BadgerCatalog) List(ctx context.Context) ([]catalog.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []catalog.Record
	err := c.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = catalog.ObjectPrefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := catalog.DecodeRecord(item.KeyCopy(nil), data)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, c.wrap(err)
	}
	return out, nil
}

func (c *BadgerCatalog) NextID(ctx context.Context) (ots.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var id ots.ObjectID
	err := c.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(catalog.NextIDKey())
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id, err = catalog.DecodeNextID(val)
			return err
		})
	})
	return id, c.wrap(err)
}

func (c *BadgerCatalog) SetNextID(ctx context.Context, id ots.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.wrap(c.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(catalog.NextIDKey(), catalog.EncodeNextID(id))
	}))
}

func (c *BadgerCatalog) Close() error {
	return c.db.Close()
}

// wrap maps badger's closed-database error onto ErrClosed.
func (c *BadgerCatalog) wrap(err error) error {
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return catalog.ErrClosed
	}
	return err
}
