package testing

import (
	"testing"

	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunGCTests executes the listing and batch deletion tests.
func (suite *StoreTestSuite) RunGCTests(t *testing.T) {
	t.Run("ListAllContent_Empty", suite.testListAllContentEmpty)
	t.Run("ListAllContent_Sorted", suite.testListAllContentSorted)
	t.Run("DeleteBatch", suite.testDeleteBatch)
	t.Run("DeleteBatch_Missing", suite.testDeleteBatchMissing)
}

func (suite *StoreTestSuite) testListAllContentEmpty(t *testing.T) {
	store := suite.NewStore()

	ids, err := store.ListAllContent(testContext())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func (suite *StoreTestSuite) testListAllContentSorted(t *testing.T) {
	store := suite.NewStore()

	for _, n := range []int{7, 2, 5} {
		mustWriteContent(t, store, testID(n), []byte("data"))
	}

	ids, err := store.ListAllContent(testContext())
	require.NoError(t, err)
	assert.Equal(t, []content.ContentID{testID(2), testID(5), testID(7)}, ids)

	for _, id := range ids {
		_, err := id.ObjectID()
		assert.NoError(t, err)
	}
}

func (suite *StoreTestSuite) testDeleteBatch(t *testing.T) {
	store := suite.NewStore()

	for n := range 5 {
		mustWriteContent(t, store, testID(n), []byte("data"))
	}

	failures, err := store.DeleteBatch(testContext(), []content.ContentID{testID(0), testID(2), testID(4)})
	require.NoError(t, err)
	assert.Empty(t, failures)

	ids, err := store.ListAllContent(testContext())
	require.NoError(t, err)
	assert.Equal(t, []content.ContentID{testID(1), testID(3)}, ids)
}

func (suite *StoreTestSuite) testDeleteBatchMissing(t *testing.T) {
	store := suite.NewStore()

	failures, err := store.DeleteBatch(testContext(), []content.ContentID{testID(40), testID(41)})
	require.NoError(t, err)
	assert.Empty(t, failures)
}
