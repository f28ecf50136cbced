// Package archive keeps a copy of every accepted upload in object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Archive struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// New returns nil, nil when no endpoint is configured.
func New(cfg config.StorageConfig, logger *slog.Logger) (*Archive, error) {
	if cfg.MinioEndpoint == "" {
		return nil, nil
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("created upload bucket", "bucket", a.bucket)
	return nil
}

// Store uploads data under name, which is the stored name assigned to the upload.
func (a *Archive) Store(ctx context.Context, name string, data []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, name,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	a.logger.Debug("archived upload", "bucket", a.bucket, "object", name, "bytes", len(data))
	return nil
}
