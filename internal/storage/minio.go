package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nao1215/scanpipe/internal/config"
)

// ErrDisabled is returned by New when no endpoint is configured.
var ErrDisabled = errors.New("object storage is not configured")

// Store archives analyzer reports in a MinIO or S3 compatible bucket.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New connects to the configured endpoint and creates the bucket if it
// does not exist yet.
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: cli, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Upload stores the file at path under key and returns the object URL.
func (s *Store) Upload(ctx context.Context, key, path string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{
		ContentType: ContentType(path),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return ObjectURL(s.client.EndpointURL().Scheme, s.client.EndpointURL().Host, s.bucket, key), nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}
	return nil
}

// ContentType guesses the MIME type of an archived file.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".json", ".sarif":
		return "application/json"
	case ".html":
		return "text/html"
	case ".log", ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// ObjectURL builds the path-style URL of an object.
func ObjectURL(scheme, host, bucket, key string) string {
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, host, bucket, strings.TrimPrefix(key, "/"))
}
