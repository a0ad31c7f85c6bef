package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"github.com/bitfantasy/approveflow/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 待办任务数缓存
const (
	uncompletedCountKeyPrefix = "approveflow:tasks:uncompleted:"
	uncompletedCountTTL       = 5 * time.Minute
)

// ApprovalService 审批工作流服务。
// 每个写操作是一个数据库事务；通知和审计在事务提交之后尽力而为地执行，
// 失败只记日志，不回滚已提交的工作流状态。
type ApprovalService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	quota    *QuotaGuard
	audit    *AuditLogService
	notifier Notifier
	cache    *redis.Client
	logger   *zap.Logger
}

// NewApprovalService 创建审批工作流服务
func NewApprovalService(db *gorm.DB, repos *repository.Repositories, quota *QuotaGuard, audit *AuditLogService, notifier Notifier, cache *redis.Client, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		db:       db,
		repos:    repos,
		quota:    quota,
		audit:    audit,
		notifier: notifier,
		cache:    cache,
		logger:   logger,
	}
}

// SubmitRequest 提交审批请求参数
type SubmitRequest struct {
	UserFileIDs []int64    `json:"user_file_ids" binding:"required"`
	Emails      []string   `json:"emails" binding:"required"`
	ApproveBy   *time.Time `json:"approve_by"`
	Comment     string     `json:"comment"`
}

// CompleteTaskRequest 完成审批任务参数
type CompleteTaskRequest struct {
	ID      int64                 `json:"id" binding:"required"`
	Status  entity.ApprovalStatus `json:"status" binding:"required"`
	Comment string                `json:"comment"`
}

// Submit 提交审批请求：配额检查、文件归属校验、创建请求和每个审批人的任务，
// 全部在一个事务内完成，然后通知所有审批人。
func (s *ApprovalService) Submit(ctx context.Context, actor entity.Actor, req SubmitRequest) (*entity.ApprovalRequest, error) {
	if len(req.Emails) == 0 {
		return nil, NewValidationError("At least one approver is required")
	}
	if len(req.UserFileIDs) == 0 {
		return nil, NewValidationError("At least one file is required")
	}

	request := &entity.ApprovalRequest{
		Author:    actor.NormalizedEmail,
		AuthorID:  actor.ID,
		Status:    entity.ApprovalStatusSubmitted,
		Submitted: time.Now().UTC(),
		ApproveBy: req.ApproveBy,
		Comment:   req.Comment,
	}
	// 审批人邮箱归一化后逐个建任务，重复的邮箱会得到重复的任务
	for _, email := range req.Emails {
		request.Tasks = append(request.Tasks, entity.ApprovalRequestTask{
			Approver: entity.NormalizeEmail(email),
			Status:   entity.ApprovalStatusSubmitted,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)

		// 用户行锁串行化同一作者的“计数-检查-插入”序列
		if _, err := repos.User.EnsureAndLock(ctx, actor); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if err := s.quota.CheckSubmission(ctx, repos, actor.NormalizedEmail, len(req.Emails)); err != nil {
			return err
		}

		// 文件必须全部存在且归作者所有，任何一个不符整体失败
		files, err := repos.UserFile.FindOwnedByIDs(ctx, req.UserFileIDs, actor.ID)
		if err != nil {
			return fmt.Errorf("load files: %w", err)
		}
		if len(files) != len(req.UserFileIDs) {
			return NewValidationError("Some files not found or not owned by user")
		}
		request.UserFiles = files

		if err := repos.Approval.CreateWithTasks(ctx, request); err != nil {
			return fmt.Errorf("create approval request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, actor.NormalizedEmail, "Submitted approval request",
		fmt.Sprintf("Request ID: %d, Files: %d", request.ID, len(request.UserFiles)))

	fileNames := fileNamesOf(request.UserFiles)
	s.invalidateUncompletedCount(ctx, approversOf(request.Tasks)...)
	go func() {
		for _, email := range req.Emails {
			s.notifier.RequestCreated(strings.ToLower(email), strings.ToLower(actor.Email), fileNames)
		}
	}()

	return request, nil
}

// CompleteTask 完成审批任务并推导请求状态。
// 先锁请求行再重读任务：同一任务的并发完成里后到者会看到已完成并失败，
// 同一请求不同任务的并发完成也被串行化，推导结果不会漏掉终态。
func (s *ApprovalService) CompleteTask(ctx context.Context, actor entity.Actor, req CompleteTaskRequest) error {
	if req.Status != entity.ApprovalStatusApproved && req.Status != entity.ApprovalStatusRejected {
		return NewValidationError("Task status must be approved or rejected")
	}

	var (
		author    string
		fileNames []string
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)

		task, err := repos.Approval.FindTaskForApprover(ctx, req.ID, actor.NormalizedEmail)
		if err != nil {
			return err
		}

		request, err := repos.Approval.LockRequest(ctx, task.ApprovalRequestID)
		if err != nil {
			return err
		}

		// 拿到锁后重读，防止重复完成
		task, err = repos.Approval.FindTaskForApprover(ctx, req.ID, actor.NormalizedEmail)
		if err != nil {
			return err
		}
		if task.Status != entity.ApprovalStatusSubmitted {
			return NewValidationError("Task is already completed")
		}

		now := time.Now().UTC()
		task.Status = req.Status
		task.Comment = req.Comment
		task.Completed = &now
		if err := repos.Approval.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("save task: %w", err)
		}

		// 请求状态只在仍为 submitted 时推导，终态不可逆转
		if request.Status == entity.ApprovalStatusSubmitted {
			tasks, err := repos.Approval.ListTasksByRequest(ctx, request.ID)
			if err != nil {
				return fmt.Errorf("load tasks: %w", err)
			}
			derived := deriveRequestStatus(tasks)
			if derived != request.Status {
				if err := repos.Approval.UpdateRequestStatus(ctx, request.ID, derived); err != nil {
					return fmt.Errorf("update request status: %w", err)
				}
			}
		}

		files, err := repos.Approval.ListFilesByRequest(ctx, request.ID)
		if err != nil {
			return fmt.Errorf("load files: %w", err)
		}
		author = request.Author
		fileNames = fileNamesOf(files)
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Log(ctx, actor.NormalizedEmail, "Completed task",
		fmt.Sprintf("Task ID: %d, Status: %s", req.ID, req.Status))

	s.invalidateUncompletedCount(ctx, actor.NormalizedEmail)
	go s.notifier.RequestReviewed(strings.ToLower(author), strings.ToLower(actor.Email), fileNames)

	return nil
}

// Delete 删除审批请求（仅作者本人），级联删除任务，文件不受影响。
// 删除后用删除前的文件名快照通知所有审批人。
func (s *ApprovalService) Delete(ctx context.Context, actor entity.Actor, requestID int64) error {
	var (
		approvers []string
		fileNames []string
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)

		request, err := repos.Approval.FindByIDForAuthor(ctx, requestID, actor.NormalizedEmail)
		if err != nil {
			return err
		}

		approvers = approversOf(request.Tasks)
		fileNames = fileNamesOf(request.UserFiles)

		if err := repos.Approval.DeleteRequest(ctx, request); err != nil {
			return fmt.Errorf("delete approval request: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Log(ctx, actor.NormalizedEmail, "Deleted approval request",
		fmt.Sprintf("Request ID: %d", requestID))

	s.invalidateUncompletedCount(ctx, approvers...)
	go func() {
		for _, approver := range approvers {
			s.notifier.RequestDeleted(strings.ToLower(approver), strings.ToLower(actor.Email), fileNames)
		}
	}()

	return nil
}

// List 获取作者提交的审批请求列表（新请求在前）
func (s *ApprovalService) List(ctx context.Context, actor entity.Actor) ([]entity.ApprovalRequest, error) {
	return s.repos.Approval.ListByAuthor(ctx, actor.NormalizedEmail)
}

// ListTasks 获取审批人的任务列表，按状态过滤（新任务在前）
func (s *ApprovalService) ListTasks(ctx context.Context, actor entity.Actor, statuses []entity.ApprovalStatus) ([]entity.ApprovalRequestTask, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, NewValidationError("Invalid task status: %s", status)
		}
	}
	return s.repos.Approval.ListTasksByApprover(ctx, actor.NormalizedEmail, statuses)
}

// CountUncompletedTasks 统计审批人的待办任务数，结果短暂缓存
func (s *ApprovalService) CountUncompletedTasks(ctx context.Context, actor entity.Actor) (int64, error) {
	key := uncompletedCountKeyPrefix + actor.NormalizedEmail
	if s.cache != nil {
		if v, err := s.cache.Get(ctx, key).Result(); err == nil {
			if count, err := strconv.ParseInt(v, 10, 64); err == nil {
				return count, nil
			}
		}
	}

	count, err := s.repos.Approval.CountTasksByApproverAndStatus(ctx, actor.NormalizedEmail, entity.ApprovalStatusSubmitted)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, strconv.FormatInt(count, 10), uncompletedCountTTL).Err(); err != nil {
			s.logger.Debug("Failed to cache uncompleted task count", zap.Error(err))
		}
	}
	return count, nil
}

// deriveRequestStatus 从任务状态推导请求状态，这是唯一的推导规则：
// 只要有一个任务被驳回，请求立刻驳回；全部任务通过，请求通过；否则继续等待。
func deriveRequestStatus(tasks []entity.ApprovalRequestTask) entity.ApprovalStatus {
	pending := 0
	for _, t := range tasks {
		switch t.Status {
		case entity.ApprovalStatusRejected:
			return entity.ApprovalStatusRejected
		case entity.ApprovalStatusSubmitted:
			pending++
		}
	}
	if pending == 0 {
		return entity.ApprovalStatusApproved
	}
	return entity.ApprovalStatusSubmitted
}

func (s *ApprovalService) invalidateUncompletedCount(ctx context.Context, approvers ...string) {
	if s.cache == nil || len(approvers) == 0 {
		return
	}
	keys := make([]string, 0, len(approvers))
	for _, approver := range approvers {
		keys = append(keys, uncompletedCountKeyPrefix+approver)
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Debug("Failed to invalidate uncompleted task count", zap.Error(err))
	}
}

func approversOf(tasks []entity.ApprovalRequestTask) []string {
	approvers := make([]string, 0, len(tasks))
	for _, t := range tasks {
		approvers = append(approvers, t.Approver)
	}
	return approvers
}

func fileNamesOf(files []entity.UserFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}
