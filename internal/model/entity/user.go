package entity

import (
	"strings"
	"time"
)

// User 用户（身份由外部认证服务签发，这里只保留业务侧需要的字段）
type User struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	Email           string    `json:"email" gorm:"size:256;not null"`
	NormalizedEmail string    `json:"normalized_email" gorm:"size:256;uniqueIndex;not null"`
	CreatedAt       time.Time `json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Actor 当前操作者（JWT 解析后的已认证身份）
type Actor struct {
	ID              string
	Email           string
	NormalizedEmail string
}

// NewActor 创建操作者，邮箱统一归一化
func NewActor(id, email string) Actor {
	return Actor{
		ID:              id,
		Email:           email,
		NormalizedEmail: NormalizeEmail(email),
	}
}

// NormalizeEmail 邮箱归一化，所有 author/approver 匹配都用归一化值
func NormalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}
