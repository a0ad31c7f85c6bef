package repository

import (
	"context"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓库
type AuditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓库
func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create 追加一条审计日志
func (r *AuditLogRepository) Create(ctx context.Context, entry *entity.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByWho 查询某个身份的审计日志（新记录在前）
func (r *AuditLogRepository) ListByWho(ctx context.Context, who string, limit int) ([]entity.AuditLogEntry, error) {
	var entries []entity.AuditLogEntry
	query := r.db.WithContext(ctx).
		Where("who = ?", who).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}
