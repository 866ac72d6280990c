package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nexusdrive/delivery-etl/internal/config"
	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// MinioStore keeps objects in one S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinioStore connects to the configured endpoint. It does not contact
// the server; use EnsureBucket or CheckReadiness for that.
func NewMinioStore(cfg *config.Config, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.MinioBucket, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("created bucket", "bucket", s.bucket)
	return nil
}

// Get downloads the object. A missing object yields a
// *domain.SourceNotFoundError.
func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapGetError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapGetError(key, err)
	}
	s.logger.Debug("downloaded object", "bucket", s.bucket, "key", key, "bytes", len(data))
	return data, nil
}

func (s *MinioStore) wrapGetError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return &domain.SourceNotFoundError{Source: "object", Key: s.bucket + "/" + key, Err: err}
	}
	return fmt.Errorf("download %s/%s: %w", s.bucket, key, err)
}

// Put uploads data as a CSV object.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debug("uploaded object", "bucket", s.bucket, "key", key, "bytes", len(data))
	return nil
}

// CheckReadiness reports whether the bucket is reachable.
func (s *MinioStore) CheckReadiness(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("object store unreachable: %w", err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}
