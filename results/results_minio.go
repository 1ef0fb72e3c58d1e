package results

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// MinIOStorage exports results to a bucket on MinIO or any S3 endpoint.
type MinIOStorage struct {
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger
}

func NewMinIOStorage(minioClient *minio.Client, bucketName string, logger *zap.Logger) *MinIOStorage {
	return &MinIOStorage{
		minioClient: minioClient,
		bucketName:  bucketName,
		logger:      logger,
	}
}

func (storage *MinIOStorage) ensureBucket(ctx context.Context) error {
	err := storage.minioClient.MakeBucket(ctx, storage.bucketName, minio.MakeBucketOptions{})
	if err == nil {
		storage.logger.Info("created results bucket", zap.String("bucket", storage.bucketName))
		return nil
	}
	// we may already own it
	exists, errBucketExists := storage.minioClient.BucketExists(ctx, storage.bucketName)
	if errBucketExists == nil && exists {
		return nil
	}
	return err
}

// Store uploads payload under name and returns its s3:// location.
func (storage *MinIOStorage) Store(ctx context.Context, name, contentType string, payload []byte) (string, error) {
	if err := storage.ensureBucket(ctx); err != nil {
		return "", err
	}

	info, err := storage.minioClient.PutObject(ctx, storage.bucketName, name,
		bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}

	storage.logger.Info("results exported",
		zap.String("bucket", storage.bucketName),
		zap.String("object", name),
		zap.Int64("size", info.Size))
	return fmt.Sprintf("s3://%s/%s", storage.bucketName, name), nil
}
