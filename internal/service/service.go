package service

import (
	"github.com/bitfantasy/approveflow/internal/config"
	"github.com/bitfantasy/approveflow/internal/repository"
	"github.com/bitfantasy/approveflow/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Approval *ApprovalService
	UserFile *UserFileService
	AuditLog *AuditLogService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, repos *repository.Repositories, store storage.FileStore, notifier Notifier, cache *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	quota := NewQuotaGuard(cfg.Limits)
	audit := NewAuditLogService(repos.AuditLog, logger)
	return &Services{
		Approval: NewApprovalService(db, repos, quota, audit, notifier, cache, logger),
		UserFile: NewUserFileService(db, repos, quota, store, audit, logger),
		AuditLog: audit,
	}
}
