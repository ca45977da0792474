package leveldb

import (
	"context"
	"testing"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	catalogtesting "github.com/marmos91/dittoots/pkg/store/catalog/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelDBCatalog(t *testing.T) {
	suite := &catalogtesting.CatalogTestSuite{
		NewCatalog: func(t *testing.T) catalog.Catalog {
			c, err := NewLevelDBCatalog(context.Background(), t.TempDir())
			require.NoError(t, err)
			return c
		},
	}
	suite.Run(t)
}

func TestMemLevelDBCatalog(t *testing.T) {
	suite := &catalogtesting.CatalogTestSuite{
		NewCatalog: func(t *testing.T) catalog.Catalog {
			c, err := NewMemLevelDBCatalog()
			require.NoError(t, err)
			return c
		},
	}
	suite.Run(t)
}

func TestLevelDBCatalog_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewLevelDBCatalog(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, catalog.Record{ID: 0x200, Name: "kept", Type: ots.UnspecifiedType}))
	require.NoError(t, c.Close())

	c, err = NewLevelDBCatalog(ctx, dir)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	recs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ots.ObjectID(0x200), recs[0].ID)
}
