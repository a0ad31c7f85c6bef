package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApprovalRepository 审批请求/任务仓库
type ApprovalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository 创建审批仓库
func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// CreateWithTasks 创建审批请求及其任务、文件关联（一次聚合写入）
func (r *ApprovalRepository) CreateWithTasks(ctx context.Context, request *entity.ApprovalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// FindByIDForAuthor 按ID加载作者本人的请求聚合（任务+文件）。
// 请求不存在与请求属于他人返回同一个 ErrNotFound。
func (r *ApprovalRepository) FindByIDForAuthor(ctx context.Context, id int64, author string) (*entity.ApprovalRequest, error) {
	var request entity.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Tasks").
		Preload("UserFiles").
		Where("id = ? AND author = ?", id, author).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &request, nil
}

// FindTaskForApprover 按ID加载审批人本人的任务。
// 任务不存在与任务属于他人返回同一个 ErrNotFound。
func (r *ApprovalRepository) FindTaskForApprover(ctx context.Context, id int64, approver string) (*entity.ApprovalRequestTask, error) {
	var task entity.ApprovalRequestTask
	err := r.db.WithContext(ctx).
		Where("id = ? AND approver = ?", id, approver).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// LockRequest 对请求行加 FOR UPDATE 锁并返回当前状态。
// 任务完成走“锁请求行 → 重读任务 → 写入”的顺序，
// 同一请求上的并发完成被串行化，重复完成和状态推导竞态都在这里关死。
func (r *ApprovalRepository) LockRequest(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	var request entity.ApprovalRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &request, nil
}

// ListTasksByRequest 加载请求的全部任务
func (r *ApprovalRepository) ListTasksByRequest(ctx context.Context, requestID int64) ([]entity.ApprovalRequestTask, error) {
	var tasks []entity.ApprovalRequestTask
	err := r.db.WithContext(ctx).
		Where("approval_request_id = ?", requestID).
		Order("id ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListFilesByRequest 加载请求引用的全部文件
func (r *ApprovalRepository) ListFilesByRequest(ctx context.Context, requestID int64) ([]entity.UserFile, error) {
	var files []entity.UserFile
	err := r.db.WithContext(ctx).
		Joins("JOIN approval_request_files arf ON arf.user_file_id = user_files.id").
		Where("arf.approval_request_id = ?", requestID).
		Find(&files).Error
	return files, err
}

// SaveTask 保存任务
func (r *ApprovalRepository) SaveTask(ctx context.Context, task *entity.ApprovalRequestTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// UpdateRequestStatus 写入推导出的请求状态
func (r *ApprovalRepository) UpdateRequestStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error {
	return r.db.WithContext(ctx).
		Model(&entity.ApprovalRequest{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ListByAuthor 获取作者的请求列表（新 ID 在前）
func (r *ApprovalRepository) ListByAuthor(ctx context.Context, author string) ([]entity.ApprovalRequest, error) {
	var requests []entity.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Tasks").
		Preload("UserFiles").
		Where("author = ?", author).
		Order("id DESC").
		Find(&requests).Error
	return requests, err
}

// ListTasksByApprover 获取审批人的任务列表，可按状态过滤（新 ID 在前）
func (r *ApprovalRepository) ListTasksByApprover(ctx context.Context, approver string, statuses []entity.ApprovalStatus) ([]entity.ApprovalRequestTask, error) {
	var tasks []entity.ApprovalRequestTask
	query := r.db.WithContext(ctx).
		Preload("Request").
		Preload("Request.UserFiles").
		Where("approver = ?", approver)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("id DESC").Find(&tasks).Error
	return tasks, err
}

// CountByAuthor 统计作者名下的请求数（任意状态，只有删除会减少）
func (r *ApprovalRepository) CountByAuthor(ctx context.Context, author string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ApprovalRequest{}).
		Where("author = ?", author).
		Count(&count).Error
	return count, err
}

// CountTasksByApproverAndStatus 统计审批人指定状态的任务数
func (r *ApprovalRepository) CountTasksByApproverAndStatus(ctx context.Context, approver string, status entity.ApprovalStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ApprovalRequestTask{}).
		Where("approver = ? AND status = ?", approver, status).
		Count(&count).Error
	return count, err
}

// DeleteRequest 删除请求：先删任务，再清文件关联，最后删请求本身。
// 文件本身不受影响，仍归原所有者。
func (r *ApprovalRepository) DeleteRequest(ctx context.Context, request *entity.ApprovalRequest) error {
	if err := r.db.WithContext(ctx).
		Where("approval_request_id = ?", request.ID).
		Delete(&entity.ApprovalRequestTask{}).Error; err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Model(request).
		Association("UserFiles").Clear(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&entity.ApprovalRequest{}, request.ID).Error
}
