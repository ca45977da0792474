// Package testing provides a reusable conformance suite for content
// stores. Every backend runs it from its own _test.go file.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittoots/pkg/store/content"
)

// StoreTestSuite tests the content.Store contract, not implementation
// details, so it runs unchanged against memory, filesystem and S3.
//
// Usage:
//
//	func TestMemoryContentStore(t *testing.T) {
//	    suite := &storetest.StoreTestSuite{
//	        NewStore: func() content.Store {
//	            s, _ := memory.NewMemoryContentStore(context.Background())
//	            return s
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func() content.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("GarbageCollection", suite.RunGCTests)
	t.Run("Statistics", suite.RunStatsTests)
}

func testContext() context.Context {
	return context.Background()
}
