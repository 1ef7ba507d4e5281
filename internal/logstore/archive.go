package logstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archiver copies expired partition files to an S3-compatible bucket
// (R2 included) before retention deletes them locally. Archival is
// best-effort cold storage, not a durability guarantee.
type S3Archiver struct {
	client     *s3.Client
	bucketName string
	prefix     string
}

// S3ArchiverConfig holds configuration for the archiver.
type S3ArchiverConfig struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	// Prefix is prepended to every object key. Default: "logs".
	Prefix string
}

// NewS3Archiver creates an archiver targeting an S3-compatible endpoint.
func NewS3Archiver(cfg S3ArchiverConfig) (*S3Archiver, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "logs"
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &S3Archiver{
		client:     client,
		bucketName: cfg.BucketName,
		prefix:     cfg.Prefix,
	}, nil
}

// Archive uploads one partition file under {prefix}/{partition}/{filename}.
func (a *S3Archiver) Archive(ctx context.Context, fileType FileType, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	key := fmt.Sprintf("%s/%s/%s", a.prefix, fileType, filepath.Base(path))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
