package entity

import (
	"time"
)

// AuditLogEntry 审计日志，只追加不修改
type AuditLogEntry struct {
	ID   int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Who  string    `json:"who" gorm:"size:256;not null"`
	When time.Time `json:"when" gorm:"column:happened_at;not null"`
	What string    `json:"what" gorm:"size:500;not null"`
	Data string    `json:"data" gorm:"type:text;not null"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}
