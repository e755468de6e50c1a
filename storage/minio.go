package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"Soundy/config"
	"Soundy/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectPrefix = "streams/"

// MinioStore keeps media objects under streams/<trackID>/<name> in one bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 初始化 MinIO 客户端，存储桶不存在时自动创建
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	logger.Info("[Storage] 正在连接 MinIO 服务器...",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("[Storage] 成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

func (s *MinioStore) Get(ctx context.Context, trackID, name string) ([]byte, string, error) {
	key, err := objectKey(trackID, name)
	if err != nil {
		return nil, "", err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectPrefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", s.translate(key, err)
	}
	defer obj.Close()

	// GetObject is lazy: a missing key only surfaces on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", s.translate(key, err)
	}
	return data, ContentType(name), nil
}

func (s *MinioStore) Put(ctx context.Context, trackID, name string, data []byte) error {
	key, err := objectKey(trackID, name)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectPrefix+key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(name),
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

func (s *MinioStore) translate(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("读取对象 %s 失败: %w", key, err)
}
