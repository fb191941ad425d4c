package s3

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/smartdl/internal/utils"
)

// Source serves one s3://bucket/key mirror through ranged GetObject calls.
type Source struct {
	link   string
	bucket string
	key    string
	client *s3.Client
}

func New(ctx context.Context, link string, cfg utils.S3Config) (*Source, error) {
	if _, _, err := parseS3URL(link); err != nil {
		return nil, err
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(link, awsCfg, cfg)
}

func NewWithConfig(link string, awsCfg aws.Config, cfg utils.S3Config) (*Source, error) {
	bucket, key, err := parseS3URL(link)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("op", "s3/initial").Msgf("source ready for s3://%s/%s", bucket, key)
	return &Source{
		link:   link,
		bucket: bucket,
		key:    key,
		client: newS3Client(awsCfg, cfg),
	}, nil
}

func (s *Source) URL() string {
	return s.link
}

func (s *Source) Probe(ctx context.Context) (*utils.ProbeResult, error) {
	headObj, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("error accessing S3 object: %w", err)
	}
	if headObj.ContentLength == nil {
		return nil, utils.ErrUnknownSize
	}
	return &utils.ProbeResult{
		Size:           *headObj.ContentLength,
		RangeSupported: true,
		FileName:       utils.SanitizeFileName(path.Base(s.key)),
	}, nil
}
