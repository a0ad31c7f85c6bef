// Package storage 文件内容存储。元数据在数据库，字节内容经 FileStore 落地，
// 访问控制在服务层判定，存储本身不做鉴权。
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound 文件内容不存在
var ErrNotFound = errors.New("file content not found")

// FileStore 文件内容存储接口
type FileStore interface {
	// Save 保存文件内容
	Save(ctx context.Context, ownerID string, fileID int64, name string, reader io.Reader, size int64, contentType string) error
	// Open 打开文件内容读取流，不存在时返回 ErrNotFound
	Open(ctx context.Context, ownerID string, fileID int64, name string) (io.ReadCloser, error)
	// Remove 删除文件内容，内容不存在不算错误
	Remove(ctx context.Context, ownerID string, fileID int64, name string) error
}
