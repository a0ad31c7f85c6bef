package service

import (
	"context"
	"time"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"github.com/bitfantasy/approveflow/internal/repository"
	"go.uber.org/zap"
)

// AuditLogService 审计日志服务。只追加；写入失败记日志，
// 绝不让审计失败影响已提交的业务操作。
type AuditLogService struct {
	repo   *repository.AuditLogRepository
	logger *zap.Logger
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(repo *repository.AuditLogRepository, logger *zap.Logger) *AuditLogService {
	return &AuditLogService{repo: repo, logger: logger}
}

// Log 追加一条审计记录
func (s *AuditLogService) Log(ctx context.Context, who, what, data string) {
	entry := &entity.AuditLogEntry{
		Who:  who,
		When: time.Now().UTC(),
		What: what,
		Data: data,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write audit log",
			zap.String("who", who),
			zap.String("what", what),
			zap.Error(err),
		)
	}
}
