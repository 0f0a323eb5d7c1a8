package minio

import (
	"bytes"
	"context"
	"fmt"

	"aura-payments/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client",
	fx.Provide(
		registerClient,
		NewStore,
	),
)

func registerClient(c *config.Config) *minio.Client {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Fatal("[MinIO] failed to create client", zap.Error(err))
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, c.Minio.BucketName)
	if err != nil {
		zap.L().Fatal("[MinIO] failed to check bucket", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
			zap.L().Fatal("[MinIO] failed to create bucket", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
		}
	}

	zap.L().Info("[MinIO] client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	return client
}

// Store writes evidence packages into the configured bucket.
type Store struct {
	client *minio.Client
	bucket string
}

func NewStore(client *minio.Client, c *config.Config) *Store {
	return &Store{client: client, bucket: c.Minio.BucketName}
}

// Put uploads body under key and returns its object reference.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	zap.L().Debug("[MinIO] object stored", zap.String("key", info.Key), zap.Int64("size", info.Size))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
