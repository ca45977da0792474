package memory

import (
	"context"
	"testing"

	"github.com/marmos91/dittoots/pkg/store/catalog"
	catalogtesting "github.com/marmos91/dittoots/pkg/store/catalog/testing"
	"github.com/stretchr/testify/assert"
)

func TestMemoryCatalog(t *testing.T) {
	suite := &catalogtesting.CatalogTestSuite{
		NewCatalog: func(t *testing.T) catalog.Catalog {
			return NewMemoryCatalog()
		},
	}
	suite.Run(t)
}

func TestMemoryCatalog_Closed(t *testing.T) {
	c := NewMemoryCatalog()
	assert.NoError(t, c.Close())

	err := c.Put(context.Background(), catalog.Record{ID: 0x100})
	assert.ErrorIs(t, err, catalog.ErrClosed)
	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, catalog.ErrClosed)
}
