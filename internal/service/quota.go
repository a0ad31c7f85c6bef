package service

import (
	"context"

	"github.com/bitfantasy/approveflow/internal/config"
	"github.com/bitfantasy/approveflow/internal/repository"
)

// QuotaGuard 配额守卫。纯读取后判定，不产生写入；
// 必须在同一事务内、拿到用户行锁之后调用，否则计数检查存在并发竞态。
// 所有上限 0 表示不限制。
type QuotaGuard struct {
	limits config.LimitsConfig
}

// NewQuotaGuard 创建配额守卫
func NewQuotaGuard(limits config.LimitsConfig) *QuotaGuard {
	return &QuotaGuard{limits: limits}
}

// CheckSubmission 提交审批请求前的配额检查
func (g *QuotaGuard) CheckSubmission(ctx context.Context, repos *repository.Repositories, author string, approverCount int) error {
	if g.limits.MaxApprovalRequestCount > 0 {
		count, err := repos.Approval.CountByAuthor(ctx, author)
		if err != nil {
			return err
		}
		if count+1 > int64(g.limits.MaxApprovalRequestCount) {
			return NewValidationError("Maximum approval request count (%d) exceeded", g.limits.MaxApprovalRequestCount)
		}
	}
	if g.limits.MaxApproverCount > 0 && approverCount > g.limits.MaxApproverCount {
		return NewValidationError("Maximum approver count (%d) exceeded", g.limits.MaxApproverCount)
	}
	return nil
}

// CheckUpload 上传文件前的配额检查
func (g *QuotaGuard) CheckUpload(ctx context.Context, repos *repository.Repositories, ownerID string, names []string, sizes []int64) error {
	if g.limits.MaxFileCount > 0 {
		count, err := repos.UserFile.CountByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if count+int64(len(sizes)) > int64(g.limits.MaxFileCount) {
			return NewValidationError("Maximum file count (%d) exceeded", g.limits.MaxFileCount)
		}
	}
	if g.limits.MaxFileSizeBytes > 0 {
		for i, size := range sizes {
			if size > g.limits.MaxFileSizeBytes {
				return NewValidationError("File %s exceeds maximum size (%d bytes)", names[i], g.limits.MaxFileSizeBytes)
			}
		}
	}
	return nil
}
