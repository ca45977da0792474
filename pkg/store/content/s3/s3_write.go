package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// put uploads data as the whole object.
func (s *S3ContentStore) put(ctx context.Context, id content.ContentID, data []byte) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
		Body:   bytes.NewReader(data),
	})
	s.observe("PutObject", start, err)
	if err != nil {
		return fmt.Errorf("failed to write object to S3: %w", err)
	}
	s.metrics.RecordBytes("write", int64(len(data)))
	return nil
}

// WriteAt merges data into the existing object at offset and uploads the
// result. Missing content is treated as empty.
func (s *S3ContentStore) WriteAt(ctx context.Context, id content.ContentID, data []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("offset %d: %w", offset, content.ErrInvalidOffset)
	}

	existing, err := s.readAll(ctx, id)
	if err != nil && !errors.Is(err, content.ErrContentNotFound) {
		return err
	}

	end := offset + int64(len(data))
	if int64(len(existing)) < end {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)

	return s.put(ctx, id, existing)
}

// Truncate rewrites the object at the new size.
func (s *S3ContentStore) Truncate(ctx context.Context, id content.ContentID, newSize uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := s.readAll(ctx, id)
	if err != nil {
		if errors.Is(err, content.ErrContentNotFound) {
			return fmt.Errorf("truncate failed for %s: %w", id, content.ErrContentNotFound)
		}
		return err
	}

	if uint64(len(existing)) == newSize {
		return nil
	}

	resized := make([]byte, newSize)
	copy(resized, existing)
	return s.put(ctx, id, resized)
}

// Delete removes the object. S3 deletes are idempotent.
func (s *S3ContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(id)),
	})
	s.observe("DeleteObject", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// WriteContent uploads data as the whole object.
func (s *S3ContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(ctx, id, data)
}
