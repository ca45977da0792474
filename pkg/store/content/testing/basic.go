package testing

import (
	"testing"

	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes the read-side tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("ReadAt_NotFound", suite.testReadAtNotFound)
	t.Run("ReadAt_Window", suite.testReadAtWindow)
	t.Run("ReadAt_PastEndIsZero", suite.testReadAtPastEnd)
	t.Run("ReadAt_NegativeOffset", suite.testReadAtNegativeOffset)
	t.Run("GetContentSize_NotFound", suite.testGetContentSizeNotFound)
	t.Run("ContentExists", suite.testContentExists)
}

func (suite *StoreTestSuite) testReadAtNotFound(t *testing.T) {
	store := suite.NewStore()

	err := store.ReadAt(testContext(), testID(0), make([]byte, 4), 0)
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testReadAtWindow(t *testing.T) {
	store := suite.NewStore()
	id := testID(1)
	mustWriteContent(t, store, id, []byte("Hello, World!"))

	assert.Equal(t, []byte("World"), mustReadAt(t, store, id, 5, 7))
	assert.Equal(t, []byte("Hello, World!"), mustReadAt(t, store, id, 13, 0))
}

func (suite *StoreTestSuite) testReadAtPastEnd(t *testing.T) {
	store := suite.NewStore()
	id := testID(2)
	mustWriteContent(t, store, id, []byte("abc"))

	assert.Equal(t, []byte{'b', 'c', 0, 0}, mustReadAt(t, store, id, 4, 1))
	assert.Equal(t, []byte{0, 0}, mustReadAt(t, store, id, 2, 10))
}

func (suite *StoreTestSuite) testReadAtNegativeOffset(t *testing.T) {
	store := suite.NewStore()
	id := testID(3)
	mustWriteContent(t, store, id, []byte("abc"))

	err := store.ReadAt(testContext(), id, make([]byte, 1), -1)
	AssertErrorIs(t, content.ErrInvalidOffset, err)
}

func (suite *StoreTestSuite) testGetContentSizeNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.GetContentSize(testContext(), testID(4))
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testContentExists(t *testing.T) {
	store := suite.NewStore()
	id := testID(5)

	assertContentExists(t, store, id, false)
	mustWriteContent(t, store, id, []byte("x"))
	assertContentExists(t, store, id, true)

	require.NoError(t, store.Delete(testContext(), id))
	assertContentExists(t, store, id, false)
}
