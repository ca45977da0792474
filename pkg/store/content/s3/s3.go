// Package s3 implements S3-backed content storage for DittoOTS.
//
// Every ContentID maps to one S3 object under an optional key prefix.
// Objects in an object transfer server are bounded by a 32-bit size, so
// partial writes use a read-modify-write of the whole S3 object rather than
// multipart uploads.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// S3ContentStore implements content.Store on an S3 bucket.
//
// Thread Safety:
// The AWS client is safe for concurrent use. Concurrent partial writes to
// the same ContentID are not coordinated here; the engine's procedure lock
// already prevents them.
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   S3Metrics
}

// S3ContentStoreConfig contains the configuration for the S3 store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is prepended to every object key (e.g. "objects/")
	KeyPrefix string

	// Metrics receives operation timings (optional)
	Metrics S3Metrics

	// SkipBucketCheck disables the HeadBucket probe at construction
	SkipBucketCheck bool
}

// NewS3ContentStore creates an S3 content store and verifies that the
// bucket is reachable.
//
// Parameters:
//   - ctx: Context for the bucket probe
//   - cfg: Store configuration
//
// Returns:
//   - *S3ContentStore: Initialized store
//   - error: If the configuration is incomplete or the bucket is unreachable
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if !cfg.SkipBucketCheck {
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   metrics,
	}, nil
}

// getObjectKey maps a ContentID to its S3 key.
func (s *S3ContentStore) getObjectKey(id content.ContentID) string {
	return s.keyPrefix + string(id)
}

// contentIDFromKey is the inverse of getObjectKey.
func (s *S3ContentStore) contentIDFromKey(key string) content.ContentID {
	return content.ContentID(strings.TrimPrefix(key, s.keyPrefix))
}

// isNotFound reports whether err is an S3 missing-object error. GetObject
// reports NoSuchKey while HeadObject reports a bare NotFound.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// observe records the outcome of one S3 call.
func (s *S3ContentStore) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveOperation(operation, time.Since(start), err)
}

var _ content.Store = (*S3ContentStore)(nil)
