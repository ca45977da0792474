package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStatsTests executes the storage statistics tests.
func (suite *StoreTestSuite) RunStatsTests(t *testing.T) {
	t.Run("GetStorageStats_Empty", suite.testGetStorageStatsEmpty)
	t.Run("GetStorageStats_WithContent", suite.testGetStorageStatsWithContent)
}

func (suite *StoreTestSuite) testGetStorageStatsEmpty(t *testing.T) {
	store := suite.NewStore()

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Equal(t, uint64(0), stats.UsedSize)
	assert.Equal(t, uint64(0), stats.ContentCount)
	assert.Equal(t, uint64(0), stats.AverageSize)
}

func (suite *StoreTestSuite) testGetStorageStatsWithContent(t *testing.T) {
	store := suite.NewStore()

	mustWriteContent(t, store, testID(1), generateTestData(100))
	mustWriteContent(t, store, testID(2), generateTestData(200))
	mustWriteContent(t, store, testID(3), generateTestData(300))

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)

	assert.Equal(t, uint64(600), stats.UsedSize)
	assert.Equal(t, uint64(3), stats.ContentCount)
	assert.Equal(t, uint64(200), stats.AverageSize)
}
