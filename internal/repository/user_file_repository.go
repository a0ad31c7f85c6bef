package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"gorm.io/gorm"
)

// UserFileRepository 用户文件仓库
type UserFileRepository struct {
	db *gorm.DB
}

// NewUserFileRepository 创建用户文件仓库
func NewUserFileRepository(db *gorm.DB) *UserFileRepository {
	return &UserFileRepository{db: db}
}

// Create 创建文件记录
func (r *UserFileRepository) Create(ctx context.Context, file *entity.UserFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// FindByID 按ID查找文件（不限所有者，权限判定在服务层）
func (r *UserFileRepository) FindByID(ctx context.Context, id int64) (*entity.UserFile, error) {
	var file entity.UserFile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &file, nil
}

// FindByIDForOwner 按ID查找所有者本人的文件。
// 文件不存在与文件属于他人返回同一个 ErrNotFound。
func (r *UserFileRepository) FindByIDForOwner(ctx context.Context, id int64, ownerID string) (*entity.UserFile, error) {
	var file entity.UserFile
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &file, nil
}

// FindOwnedByIDs 按ID集合加载所有者本人的文件
func (r *UserFileRepository) FindOwnedByIDs(ctx context.Context, ids []int64, ownerID string) ([]entity.UserFile, error) {
	var files []entity.UserFile
	err := r.db.WithContext(ctx).
		Where("id IN ? AND owner_id = ?", ids, ownerID).
		Find(&files).Error
	return files, err
}

// ListByOwner 获取所有者的文件列表（新文件在前）
func (r *UserFileRepository) ListByOwner(ctx context.Context, ownerID string) ([]entity.UserFile, error) {
	var files []entity.UserFile
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id DESC").
		Find(&files).Error
	return files, err
}

// CountByOwner 统计所有者的文件数
func (r *UserFileRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.UserFile{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	return count, err
}

// IsApprover 判断指定审批人是否通过某个审批请求引用了该文件。
// 实时存在性查询，不缓存：审批人完成任务后仍保留读权限。
func (r *UserFileRepository) IsApprover(ctx context.Context, approver string, fileID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ApprovalRequestTask{}).
		Joins("JOIN approval_request_files arf ON arf.approval_request_id = approval_request_tasks.approval_request_id").
		Where("approval_request_tasks.approver = ? AND arf.user_file_id = ?", approver, fileID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete 删除文件记录
func (r *UserFileRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&entity.UserFile{}, id).Error
}
