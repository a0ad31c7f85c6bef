package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"github.com/bitfantasy/approveflow/internal/repository"
	"github.com/bitfantasy/approveflow/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserFileService 用户文件服务。
// 访问控制在这里判定：所有者可读写删，审批人只通过在途或已完成的审批关系获得读权限。
// 对外不区分“不存在”和“无权限”，一律返回 not found，避免探测文件是否存在。
type UserFileService struct {
	db     *gorm.DB
	repos  *repository.Repositories
	quota  *QuotaGuard
	store  storage.FileStore
	audit  *AuditLogService
	logger *zap.Logger
}

// NewUserFileService 创建用户文件服务
func NewUserFileService(db *gorm.DB, repos *repository.Repositories, quota *QuotaGuard, store storage.FileStore, audit *AuditLogService, logger *zap.Logger) *UserFileService {
	return &UserFileService{
		db:     db,
		repos:  repos,
		quota:  quota,
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// FileUpload 单个待上传文件
type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

// Upload 上传一批文件：配额检查后逐个建记录并落地字节内容，整体一个事务
func (s *UserFileService) Upload(ctx context.Context, actor entity.Actor, uploads []FileUpload) ([]entity.UserFile, error) {
	if len(uploads) == 0 {
		return nil, NewValidationError("At least one file is required")
	}

	names := make([]string, 0, len(uploads))
	sizes := make([]int64, 0, len(uploads))
	for _, u := range uploads {
		names = append(names, u.Name)
		sizes = append(sizes, u.Size)
	}

	var files []entity.UserFile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)

		// 用户行锁串行化同一所有者的配额检查
		if _, err := repos.User.EnsureAndLock(ctx, actor); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if err := s.quota.CheckUpload(ctx, repos, actor.ID, names, sizes); err != nil {
			return err
		}

		for _, u := range uploads {
			file := entity.UserFile{
				Name:    u.Name,
				Type:    filepath.Ext(u.Name),
				Size:    u.Size,
				Created: time.Now().UTC(),
				OwnerID: actor.ID,
			}
			if err := repos.UserFile.Create(ctx, &file); err != nil {
				return fmt.Errorf("create file record: %w", err)
			}
			if err := s.store.Save(ctx, actor.ID, file.ID, file.Name, u.Reader, u.Size, u.ContentType); err != nil {
				return fmt.Errorf("save file content: %w", err)
			}
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		s.audit.Log(ctx, actor.NormalizedEmail, "Uploaded user file",
			fmt.Sprintf("File: %s, Size: %d", file.Name, file.Size))
	}
	return files, nil
}

// List 获取所有者的文件列表（新文件在前）
func (s *UserFileService) List(ctx context.Context, actor entity.Actor) ([]entity.UserFile, error) {
	return s.repos.UserFile.ListByOwner(ctx, actor.ID)
}

// Download 下载文件。所有者或相关审批人可读，其余人得到与文件不存在
// 完全相同的 not found。
func (s *UserFileService) Download(ctx context.Context, actor entity.Actor, fileID int64) (*entity.UserFile, io.ReadCloser, error) {
	file, err := s.repos.UserFile.FindByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.checkRead(ctx, actor, file); err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Open(ctx, file.OwnerID, file.ID, file.Name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, repository.ErrNotFound
		}
		return nil, nil, fmt.Errorf("open file content: %w", err)
	}
	return file, rc, nil
}

// Delete 删除文件（仅所有者，无条件）。
// 即使文件仍被在途审批请求引用也允许删除，审批人随后看到悬空引用，
// 这是既定策略而不是疏漏。
func (s *UserFileService) Delete(ctx context.Context, actor entity.Actor, fileID int64) error {
	var file *entity.UserFile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)

		var err error
		file, err = repos.UserFile.FindByIDForOwner(ctx, fileID, actor.ID)
		if err != nil {
			return err
		}
		return repos.UserFile.Delete(ctx, file.ID)
	})
	if err != nil {
		return err
	}

	// 字节内容删除尽力而为，失败不影响已删除的记录
	if err := s.store.Remove(ctx, file.OwnerID, file.ID, file.Name); err != nil {
		s.logger.Error("Failed to remove file content",
			zap.Int64("file_id", file.ID),
			zap.Error(err),
		)
	}

	s.audit.Log(ctx, actor.NormalizedEmail, "Deleted user file",
		fmt.Sprintf("File: %s", file.Name))
	return nil
}

// checkRead 读权限判定：所有者，或通过任一审批任务关联到该文件的审批人。
// 审批人完成任务后读权限保留。失败统一返回 ErrNotFound。
func (s *UserFileService) checkRead(ctx context.Context, actor entity.Actor, file *entity.UserFile) error {
	if file.OwnerID == actor.ID {
		return nil
	}
	ok, err := s.repos.UserFile.IsApprover(ctx, actor.NormalizedEmail, file.ID)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}
