package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// ReadAt fetches the window with a ranged GET and zero-fills whatever lies
// past the end of the S3 object.
func (s *S3ContentStore) ReadAt(ctx context.Context, id content.ContentID, p []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	size, err := s.GetContentSize(ctx, id)
	if err != nil {
		return err
	}

	clear(p)
	if len(p) == 0 || uint64(offset) >= size {
		return nil
	}

	last := min(uint64(offset)+uint64(len(p)), size) - 1

	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, last)),
	})
	s.observe("GetObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()

	want := int(last - uint64(offset) + 1)
	n, err := io.ReadFull(result.Body, p[:want])
	s.metrics.RecordBytes("read", int64(n))
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}
	return nil
}

// readAll fetches the whole object. A missing object yields
// ErrContentNotFound.
func (s *S3ContentStore) readAll(ctx context.Context, id content.ContentID) ([]byte, error) {
	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	s.observe("GetObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	s.metrics.RecordBytes("read", int64(len(data)))
	return data, nil
}

// GetContentSize returns the S3 object's content length.
func (s *S3ContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	s.observe("HeadObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}

	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", id)
	}
	return uint64(*result.ContentLength), nil
}

// ContentExists probes the object with HeadObject.
func (s *S3ContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	_, err := s.GetContentSize(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, content.ErrContentNotFound) {
		return false, nil
	}
	return false, err
}

// GetStorageStats walks the prefix and sums object sizes. S3 capacity is
// reported as unlimited.
func (s *S3ContentStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var used, count uint64

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Size != nil {
				used += uint64(*obj.Size)
			}
			count++
		}
	}

	return content.NewStorageStats(content.Unlimited, used, content.Unlimited, count), nil
}
