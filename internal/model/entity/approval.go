package entity

import (
	"time"
)

// ApprovalStatus 审批状态
type ApprovalStatus string

// 审批状态常量，请求和任务共用同一组状态
const (
	ApprovalStatusSubmitted ApprovalStatus = "submitted"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
)

// Valid 状态值是否合法
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusSubmitted, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	}
	return false
}

// Terminal 是否终态
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// ApprovalRequest 审批请求
// Status 只能由任务状态推导得出（见 service.deriveRequestStatus），不允许单独修改
type ApprovalRequest struct {
	ID        int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Author    string         `json:"author" gorm:"size:256;not null;index"`
	AuthorID  string         `json:"author_id" gorm:"size:36;not null"`
	Status    ApprovalStatus `json:"status" gorm:"size:20;not null;default:'submitted'"`
	Submitted time.Time      `json:"submitted"`
	ApproveBy *time.Time     `json:"approve_by"`
	Comment   string         `json:"comment" gorm:"type:text"`

	// 关联
	Tasks     []ApprovalRequestTask `json:"tasks,omitempty" gorm:"foreignKey:ApprovalRequestID"`
	UserFiles []UserFile            `json:"user_files,omitempty" gorm:"many2many:approval_request_files"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// ApprovalRequestTask 单个审批人的审批任务
// Completed 在且仅在状态离开 submitted 时写入，之后任务不可再变更
type ApprovalRequestTask struct {
	ID                int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	ApprovalRequestID int64          `json:"approval_request_id" gorm:"not null;index"`
	Approver          string         `json:"approver" gorm:"size:256;not null;index"`
	Status            ApprovalStatus `json:"status" gorm:"size:20;not null;default:'submitted'"`
	Completed         *time.Time     `json:"completed"`
	Comment           string         `json:"comment" gorm:"type:text"`

	// 关联
	Request *ApprovalRequest `json:"approval_request,omitempty" gorm:"foreignKey:ApprovalRequestID"`
}

func (ApprovalRequestTask) TableName() string {
	return "approval_request_tasks"
}
