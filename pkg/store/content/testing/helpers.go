package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs fails the test unless errors.Is(actual, expected).
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// testID returns the ContentID of object FirstObjectID+n.
func testID(n int) content.ContentID {
	return content.IDForObject(ots.FirstObjectID + ots.ObjectID(n))
}

func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func mustWriteContent(t *testing.T, store content.WritableContentStore, id content.ContentID, data []byte) {
	t.Helper()
	require.NoError(t, store.WriteContent(testContext(), id, data), "WriteContent should succeed")
}

func mustWriteAt(t *testing.T, store content.WritableContentStore, id content.ContentID, data []byte, offset int64) {
	t.Helper()
	require.NoError(t, store.WriteAt(testContext(), id, data, offset), "WriteAt should succeed")
}

func mustReadAt(t *testing.T, store content.ContentStore, id content.ContentID, length int, offset int64) []byte {
	t.Helper()
	p := make([]byte, length)
	require.NoError(t, store.ReadAt(testContext(), id, p, offset), "ReadAt should succeed")
	return p
}

func mustGetSize(t *testing.T, store content.ContentStore, id content.ContentID) uint64 {
	t.Helper()
	size, err := store.GetContentSize(testContext(), id)
	require.NoError(t, err, "GetContentSize should succeed")
	return size
}

func assertContentExists(t *testing.T, store content.ContentStore, id content.ContentID, expected bool) {
	t.Helper()
	exists, err := store.ContentExists(testContext(), id)
	require.NoError(t, err, "ContentExists should not error")
	assert.Equal(t, expected, exists, "Content existence mismatch")
}

func assertContentEquals(t *testing.T, store content.ContentStore, id content.ContentID, expected []byte) {
	t.Helper()
	assert.Equal(t, uint64(len(expected)), mustGetSize(t, store, id), "Content size mismatch")
	assert.Equal(t, expected, mustReadAt(t, store, id, len(expected), 0), "Content data mismatch")
}
