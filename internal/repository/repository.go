package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	User     *UserRepository
	UserFile *UserFileRepository
	Approval *ApprovalRepository
	AuditLog *AuditLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:     NewUserRepository(db),
		UserFile: NewUserFileRepository(db),
		Approval: NewApprovalRepository(db),
		AuditLog: NewAuditLogRepository(db),
	}
}

// WithTx 返回绑定到事务的仓库集合，服务层在事务闭包内使用
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return NewRepositories(tx)
}
