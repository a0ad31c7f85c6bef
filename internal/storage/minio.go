package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinioStore MinIO 对象存储，对象名为 {ownerID}/{fileID}/{name}
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 创建 MinIO 存储
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

func (s *MinioStore) objectName(ownerID string, fileID int64, name string) string {
	return fmt.Sprintf("%s/%d/%s", ownerID, fileID, name)
}

// Save 保存文件内容
func (s *MinioStore) Save(ctx context.Context, ownerID string, fileID int64, name string, reader io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(ownerID, fileID, name), reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	return nil
}

// Open 打开文件内容
func (s *MinioStore) Open(ctx context.Context, ownerID string, fileID int64, name string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, s.objectName(ownerID, fileID, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject 是惰性的，读第一个字节才会暴露 NoSuchKey
	return object, nil
}

// Remove 删除文件内容
func (s *MinioStore) Remove(ctx context.Context, ownerID string, fileID int64, name string) error {
	return s.client.RemoveObject(ctx, s.bucket, s.objectName(ownerID, fileID, name), minio.RemoveObjectOptions{})
}
