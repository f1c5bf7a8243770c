// Package s3storage keeps raw uploads and export artifacts in MinIO/S3.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ledgerdock/ledgerdock/internal/config"
)

// Storage wraps MinIO interactions for the upload and export buckets. It
// satisfies the engine's BlobStore interface.
type Storage struct {
	client       *minio.Client
	uploadBucket string
	exportBucket string
	region       string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:       client,
		uploadBucket: cfg.UploadBucket,
		exportBucket: cfg.ExportBucket,
		region:       cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure the upload/export buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.exportBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadRaw stores the uploaded file bytes in the upload bucket.
func (s *Storage) UploadRaw(ctx context.Context, objectKey string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.uploadBucket, objectKey, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload raw object: %w", err)
	}
	return nil
}

// DownloadRaw fetches the raw upload bytes back for extraction.
func (s *Storage) DownloadRaw(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.uploadBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get raw object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read raw object: %w", err)
	}
	return buf, nil
}

// DeleteRaw removes the stored upload.
func (s *Storage) DeleteRaw(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.uploadBucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove raw object: %w", err)
	}
	return nil
}

// UploadExport stores a generated CSV artifact in the export bucket.
func (s *Storage) UploadExport(ctx context.Context, objectKey string, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: "text/csv; charset=utf-8"}
	_, err := s.client.PutObject(ctx, s.exportBucket, objectKey, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload export object: %w", err)
	}
	return nil
}

// PresignExport returns a signed GET URL for the export artifact.
func (s *Storage) PresignExport(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.exportBucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign export object: %w", err)
	}
	return u.String(), nil
}
