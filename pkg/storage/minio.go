// Package storage 提供了与对象存储服务（MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"section-studio-go/internal/config"
	"section-studio-go/pkg/log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := MinioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
}

// ObjectStore 是业务层依赖的最小对象存储接口。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
	PresignGet(ctx context.Context, objectName, downloadName string, expiry time.Duration) (string, error)
}

// MinioStore 用全局 MinioClient 实现 ObjectStore。
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 创建一个绑定到指定存储桶的 MinioStore。
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// Put 上传一个完整对象。
func (s *MinioStore) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectName, err)
	}
	return nil
}

// PresignGet 生成带下载文件名的预签名 GET 地址。
func (s *MinioStore) PresignGet(ctx context.Context, objectName, downloadName string, expiry time.Duration) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, params)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}
