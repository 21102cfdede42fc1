// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// S3Config holds the S3 archive configuration
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	EndpointURL     string // S3-compatible endpoints such as MinIO
	AccessKeyID     string // Optional, falls back to the default credential chain
	SecretAccessKey string
}

// S3API is the subset of the S3 client used by the archive.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive keeps raw caption files in an S3 bucket.
type S3Archive struct {
	client S3API
	config S3Config
}

var _ domain.CaptionArchive = (*S3Archive)(nil)

// NewS3Client builds an S3 client from the configuration.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Archive creates an archive writing to cfg.Bucket through client.
func NewS3Archive(client S3API, cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, domain.NewValidationError("S3 archive bucket is required")
	}
	return &S3Archive{client: client, config: cfg}, nil
}

func (a *S3Archive) objectKey(key string) string {
	return a.config.Prefix + key
}

// Store uploads content under key.
func (a *S3Archive) Store(ctx context.Context, key string, content []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.config.Bucket),
		Key:           aws.String(a.objectKey(key)),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String("text/vtt; charset=utf-8"),
		ContentLength: aws.Int64(int64(len(content))),
		Metadata: map[string]string{
			"upload-source": "lfx-meeting-transcript-service",
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "error uploading caption to S3", logging.ErrKey, err,
			"bucket", a.config.Bucket,
			"key", a.objectKey(key),
		)
		return domain.NewUnavailableError("failed to upload caption to S3", err)
	}
	return nil
}

// Load downloads the content stored under key.
func (a *S3Archive) Load(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.config.Bucket),
		Key:    aws.String(a.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, domain.NewNotFoundError("caption object not found")
		}
		return nil, domain.NewUnavailableError("failed to download caption from S3", err)
	}
	defer func() {
		_ = result.Body.Close()
	}()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, domain.NewUnavailableError("failed to read caption from S3", err)
	}
	return data, nil
}
