// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"smarthomes-semantic/internal/config"
	"smarthomes-semantic/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// snapshotPrefix 是快照对象在存储桶中的目录。
const snapshotPrefix = "snapshots"

// NewMinIOClient 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIOClient(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	// 1. 初始化 MinIO 客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	bucketName := cfg.BucketName
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
	return client, nil
}

// SnapshotUploader 将本地的向量快照文件上传到 MinIO。
type SnapshotUploader struct {
	client *minio.Client
	bucket string
}

// NewSnapshotUploader 创建一个新的 SnapshotUploader。
func NewSnapshotUploader(client *minio.Client, bucket string) *SnapshotUploader {
	return &SnapshotUploader{client: client, bucket: bucket}
}

// ObjectName 返回快照文件在存储桶中的对象名。
func ObjectName(localPath string) string {
	return path.Join(snapshotPrefix, filepath.Base(localPath))
}

// UploadSnapshot 上传快照文件，返回对象名。
func (u *SnapshotUploader) UploadSnapshot(ctx context.Context, localPath string) (string, error) {
	objectName := ObjectName(localPath)
	info, err := u.client.FPutObject(ctx, u.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		log.Errorf("[SnapshotUploader] 上传快照 %s 失败: %v", localPath, err)
		return "", err
	}
	log.Infof("[SnapshotUploader] 快照已上传到 %s/%s, 大小: %d", u.bucket, objectName, info.Size)
	return objectName, nil
}
