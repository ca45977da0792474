package s3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// maxBatchSize is the DeleteObjects per-request limit.
const maxBatchSize = 1000

// ListAllContent lists every key under the prefix.
func (s *S3ContentStore) ListAllContent(ctx context.Context) ([]content.ContentID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []content.ContentID

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			ids = append(ids, s.contentIDFromKey(*obj.Key))
		}
	}

	slices.Sort(ids)
	return ids, nil
}

// DeleteBatch removes items with DeleteObjects, up to 1000 keys per call.
func (s *S3ContentStore) DeleteBatch(ctx context.Context, ids []content.ContentID) (map[content.ContentID]error, error) {
	failures := make(map[content.ContentID]error)

	for i := 0; i < len(ids); i += maxBatchSize {
		if err := ctx.Err(); err != nil {
			for _, id := range ids[i:] {
				failures[id] = err
			}
			return failures, err
		}

		batch := ids[i:min(i+maxBatchSize, len(ids))]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, id := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(s.getObjectKey(id))}
		}

		start := time.Now()
		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		s.observe("DeleteObjects", start, err)
		if err != nil {
			for _, id := range batch {
				failures[id] = err
			}
			continue
		}

		for _, deleteErr := range result.Errors {
			if deleteErr.Key == nil {
				continue
			}
			msg := "unknown error"
			if deleteErr.Code != nil && deleteErr.Message != nil {
				msg = fmt.Sprintf("%s: %s", *deleteErr.Code, *deleteErr.Message)
			}
			failures[s.contentIDFromKey(*deleteErr.Key)] = errors.New(msg)
		}
	}

	return failures, nil
}
