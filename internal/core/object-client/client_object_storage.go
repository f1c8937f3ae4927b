package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	cfg "github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"go.uber.org/zap"
)

var _ ObjectStore = (*S3Client)(nil)

type S3Client struct {
	client     *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
	region     string
	bucket     string
	endpoint   string
	logger     *zap.Logger
}

// NewS3Client connects to S3, or to an S3-compatible endpoint with
// path-style addressing when S3Endpoint is set.
func NewS3Client(ctx context.Context, cfg *cfg.Config, logger *zap.Logger) (*S3Client, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimRight(cfg.S3Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Info("object storage ready",
		zap.String("bucket", cfg.BucketName),
		zap.String("region", cfg.AwsRegion),
		zap.String("endpoint", endpoint),
	)

	return &S3Client{
		client:     client,
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
		region:     cfg.AwsRegion,
		bucket:     cfg.BucketName,
		endpoint:   endpoint,
		logger:     logger,
	}, nil
}

// Fetch downloads the object into a temp file that keeps the key's
// extension. The handle removes the file on Close.
func (c *S3Client) Fetch(ctx context.Context, key string) (*models.LocalHandle, error) {
	f, err := os.CreateTemp("", "contexta-*"+path.Ext(key))
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", core.ErrFetch, err)
	}

	n, err := c.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3 get %q: %w", core.ErrFetch, key, core.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("%w: s3 get %q: %w", core.ErrFetch, key, err)
	}

	c.logger.Debug("object downloaded", zap.String("key", key), zap.Int64("bytes", n))
	return models.NewTempHandle(key, f.Name(), n), nil
}

// Put uploads body under a fresh key derived from name and returns the key.
func (c *S3Client) Put(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	key := NewFileKey(name, time.Now())

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := c.uploader.Upload(ctxUpload, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	c.logger.Info("object uploaded", zap.String("key", key))
	return key, nil
}

// URL returns the address of key in the bucket.
func (c *S3Client) URL(key string) string {
	if c.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
