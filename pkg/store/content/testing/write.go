package testing

import (
	"testing"

	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes the mutation tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("WriteContent_Replace", suite.testWriteContentReplace)
	t.Run("WriteAt_Creates", suite.testWriteAtCreates)
	t.Run("WriteAt_Overwrite", suite.testWriteAtOverwrite)
	t.Run("WriteAt_SparseGap", suite.testWriteAtSparseGap)
	t.Run("WriteAt_Chunked", suite.testWriteAtChunked)
	t.Run("Truncate_Shrink", suite.testTruncateShrink)
	t.Run("Truncate_Extend", suite.testTruncateExtend)
	t.Run("Truncate_NotFound", suite.testTruncateNotFound)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
}

func (suite *StoreTestSuite) testWriteContentReplace(t *testing.T) {
	store := suite.NewStore()
	id := testID(10)

	mustWriteContent(t, store, id, []byte("first version"))
	mustWriteContent(t, store, id, []byte("v2"))
	assertContentEquals(t, store, id, []byte("v2"))
}

func (suite *StoreTestSuite) testWriteAtCreates(t *testing.T) {
	store := suite.NewStore()
	id := testID(11)

	mustWriteAt(t, store, id, []byte("data"), 0)
	assertContentEquals(t, store, id, []byte("data"))
}

func (suite *StoreTestSuite) testWriteAtOverwrite(t *testing.T) {
	store := suite.NewStore()
	id := testID(12)

	mustWriteContent(t, store, id, []byte("hello world"))
	mustWriteAt(t, store, id, []byte("WORLD"), 6)
	assertContentEquals(t, store, id, []byte("hello WORLD"))
}

func (suite *StoreTestSuite) testWriteAtSparseGap(t *testing.T) {
	store := suite.NewStore()
	id := testID(13)

	mustWriteAt(t, store, id, []byte("xy"), 3)
	assertContentEquals(t, store, id, []byte{0, 0, 0, 'x', 'y'})
}

func (suite *StoreTestSuite) testWriteAtChunked(t *testing.T) {
	store := suite.NewStore()
	id := testID(14)
	data := generateTestData(1000)

	for off := 0; off < len(data); off += 244 {
		end := min(off+244, len(data))
		mustWriteAt(t, store, id, data[off:end], int64(off))
	}
	assertContentEquals(t, store, id, data)
}

func (suite *StoreTestSuite) testTruncateShrink(t *testing.T) {
	store := suite.NewStore()
	id := testID(15)

	mustWriteContent(t, store, id, []byte("0123456789"))
	require.NoError(t, store.Truncate(testContext(), id, 4))
	assertContentEquals(t, store, id, []byte("0123"))
}

func (suite *StoreTestSuite) testTruncateExtend(t *testing.T) {
	store := suite.NewStore()
	id := testID(16)

	mustWriteContent(t, store, id, []byte("ab"))
	require.NoError(t, store.Truncate(testContext(), id, 4))
	assertContentEquals(t, store, id, []byte{'a', 'b', 0, 0})
}

func (suite *StoreTestSuite) testTruncateNotFound(t *testing.T) {
	store := suite.NewStore()

	err := store.Truncate(testContext(), testID(17), 0)
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.NewStore()
	id := testID(18)

	mustWriteContent(t, store, id, []byte("bye"))
	assert.NoError(t, store.Delete(testContext(), id))
	assert.NoError(t, store.Delete(testContext(), id))
	assertContentExists(t, store, id, false)
}
