package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DiskStore 本地磁盘存储，布局为 root/{ownerID}/{fileID}/{name}
type DiskStore struct {
	root string
}

// NewDiskStore 创建本地磁盘存储
func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

func (s *DiskStore) path(ownerID string, fileID int64, name string) string {
	return filepath.Join(s.root, ownerID, fmt.Sprintf("%d", fileID), name)
}

// Save 保存文件内容
func (s *DiskStore) Save(ctx context.Context, ownerID string, fileID int64, name string, reader io.Reader, size int64, contentType string) error {
	path := s.path(ownerID, fileID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open 打开文件内容
func (s *DiskStore) Open(ctx context.Context, ownerID string, fileID int64, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(ownerID, fileID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Remove 删除文件内容，并清理空目录
func (s *DiskStore) Remove(ctx context.Context, ownerID string, fileID int64, name string) error {
	path := s.path(ownerID, fileID, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	// 文件目录为空则一并删除
	dir := filepath.Dir(path)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
	return nil
}
