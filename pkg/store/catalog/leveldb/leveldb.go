// Package leveldb provides a catalog backed by goleveldb.
package leveldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBCatalog stores one key per record.
type LevelDBCatalog struct {
	path string
	db   *leveldb.DB
}

var _ catalog.Catalog = (*LevelDBCatalog)(nil)

// NewLevelDBCatalog opens the database at path, recovering it when the
// manifest is corrupted.
func NewLevelDBCatalog(ctx context.Context, path string) (*LevelDBCatalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := &opt.Options{Compression: opt.NoCompression}

	db, err := leveldb.OpenFile(path, opts)
	if lerrors.IsCorrupted(err) {
		logger.Warn("LevelDB catalog at %s is corrupted, recovering", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB at %s: %w", path, err)
	}

	logger.Debug("Opened leveldb catalog at %s", path)
	return &LevelDBCatalog{path: path, db: db}, nil
}

// NewMemLevelDBCatalog opens a LevelDB catalog on in-memory storage.
func NewMemLevelDBCatalog() (*LevelDBCatalog, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBCatalog{db: db}, nil
}

func (c *LevelDBCatalog) Put(ctx context.Context, rec catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := catalog.EncodeRecord(rec)
	if err != nil {
		return err
	}
	return wrap(c.db.Put(catalog.ObjectKey(rec.ID), data, nil))
}

func (c *LevelDBCatalog) Delete(ctx context.Context, id ots.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(c.db.Delete(catalog.ObjectKey(id), nil))
}

func (c *LevelDBCatalog) List(ctx context.Context) ([]catalog.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	it := c.db.NewIterator(util.BytesPrefix(catalog.ObjectPrefix()), nil)
	defer it.Release()

	var out []catalog.Record
	for it.Next() {
		// The iterator reuses its buffers between steps
		key := append([]byte(nil), it.Key()...)
		rec, err := catalog.DecodeRecord(key, it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := it.Error(); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func (c *LevelDBCatalog) NextID(ctx context.Context) (ots.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := c.db.Get(catalog.NextIDKey(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err)
	}
	return catalog.DecodeNextID(data)
}

func (c *LevelDBCatalog) SetNextID(ctx context.Context, id ots.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(c.db.Put(catalog.NextIDKey(), catalog.EncodeNextID(id), nil))
}

func (c *LevelDBCatalog) Close() error {
	return c.db.Close()
}

func wrap(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return catalog.ErrClosed
	}
	return err
}
