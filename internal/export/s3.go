package export

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the parameters of an S3-compatible upload target (AWS S3 or MinIO).
type S3Config struct {
	Bucket string
	// Region defaults to us-east-1.
	Region string
	// Endpoint is optional; set it for MinIO or another S3-compatible store.
	Endpoint string
	// Prefix is prepended to every object key.
	Prefix    string
	PathStyle bool
}

// objectPutter is the slice of the S3 client the uploader needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader pushes export files to a single bucket.
type S3Uploader struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Uploader builds an uploader using the default AWS credentials chain.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Uploader(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Uploader(client objectPutter, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key used for name.
func (u *S3Uploader) Key(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload stores r under the prefixed key and returns the full key.
func (u *S3Uploader) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	key := u.Key(name)
	in := &s3.PutObjectInput{Bucket: aws.String(u.bucket), Key: aws.String(key), Body: r}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}
