package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func (s *Source) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	if end >= 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", start, end))
	}
	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting object: %w", err)
	}
	return result.Body, nil
}
