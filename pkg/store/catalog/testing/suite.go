// Package testing provides the conformance suite every catalog backend
// runs from its own _test.go file.
package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CatalogTestSuite tests the catalog.Catalog contract.
type CatalogTestSuite struct {
	// NewCatalog creates a fresh, empty catalog for each test. The suite
	// closes it.
	NewCatalog func(t *testing.T) catalog.Catalog
}

// Run executes all tests in the suite.
func (suite *CatalogTestSuite) Run(t *testing.T) {
	t.Run("PutAndList", suite.testPutAndList)
	t.Run("PutReplaces", suite.testPutReplaces)
	t.Run("Delete", suite.testDelete)
	t.Run("NextID", suite.testNextID)
	t.Run("TypesRoundTrip", suite.testTypesRoundTrip)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func sampleRecord(id ots.ObjectID, name string) catalog.Record {
	return catalog.Record{
		ID:            id,
		Name:          name,
		Type:          ots.UnspecifiedType,
		CurrentSize:   10,
		AllocatedSize: 64,
		FirstCreated:  ots.DateTime{Year: 2024, Month: 3, Day: 1, Hours: 12},
		LastModified:  ots.DateTime{Year: 2024, Month: 3, Day: 2, Minutes: 30},
		Properties:    ots.PropertyRead | ots.PropertyWrite,
	}
}

func (suite *CatalogTestSuite) open(t *testing.T) catalog.Catalog {
	t.Helper()
	c := suite.NewCatalog(t)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (suite *CatalogTestSuite) testPutAndList(t *testing.T) {
	ctx := context.Background()
	c := suite.open(t)

	empty, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Inserted out of order, listed by ID.
	for _, id := range []ots.ObjectID{0x300, 0x100, 0x10000000000, 0x200} {
		require.NoError(t, c.Put(ctx, sampleRecord(id, id.String())))
	}

	recs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, ots.ObjectID(0x100), recs[0].ID)
	assert.Equal(t, ots.ObjectID(0x200), recs[1].ID)
	assert.Equal(t, ots.ObjectID(0x300), recs[2].ID)
	assert.Equal(t, ots.ObjectID(0x10000000000), recs[3].ID)
	assert.Equal(t, sampleRecord(0x100, ots.ObjectID(0x100).String()), recs[0])
}

func (suite *CatalogTestSuite) testPutReplaces(t *testing.T) {
	ctx := context.Background()
	c := suite.open(t)

	require.NoError(t, c.Put(ctx, sampleRecord(0x100, "before")))
	rec := sampleRecord(0x100, "after")
	rec.Marked = true
	rec.CurrentSize = 64
	require.NoError(t, c.Put(ctx, rec))

	recs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec, recs[0])
}

func (suite *CatalogTestSuite) testDelete(t *testing.T) {
	ctx := context.Background()
	c := suite.open(t)

	require.NoError(t, c.Put(ctx, sampleRecord(0x100, "a")))
	require.NoError(t, c.Put(ctx, sampleRecord(0x101, "b")))
	require.NoError(t, c.Delete(ctx, 0x100))
	require.NoError(t, c.Delete(ctx, 0x999), "deleting a missing record is not an error")

	recs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].Name)
}

func (suite *CatalogTestSuite) testNextID(t *testing.T) {
	ctx := context.Background()
	c := suite.open(t)

	id, err := c.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ots.ObjectID(0), id)

	require.NoError(t, c.SetNextID(ctx, 0x1234))
	id, err = c.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ots.ObjectID(0x1234), id)

	recs, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs, "the allocator key is not a record")
}

func (suite *CatalogTestSuite) testTypesRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := suite.open(t)

	types := []ots.ObjectType{
		ots.Type16(0x2ACA),
		ots.Type32(0x0001ABCD),
		ots.Type128(uuid.MustParse("12345678-9abc-def0-1234-56789abcdef0")),
	}
	for i, typ := range types {
		rec := sampleRecord(ots.FirstObjectID+ots.ObjectID(i), "t")
		rec.Type = typ
		require.NoError(t, c.Put(ctx, rec))
	}

	recs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, len(types))
	for i, typ := range types {
		assert.True(t, typ.Equal(recs[i].Type), "type %s round trips, got %s", typ, recs[i].Type)
	}
}

func (suite *CatalogTestSuite) testCancelledContext(t *testing.T) {
	c := suite.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Put(ctx, sampleRecord(0x100, "a")), context.Canceled)
	_, err := c.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
