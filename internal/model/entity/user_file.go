package entity

import (
	"time"
)

// UserFile 用户文件，物理内容存放在 FileStore，这里只存元数据
type UserFile struct {
	ID      int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name    string    `json:"name" gorm:"size:255;not null"`
	Type    string    `json:"type" gorm:"size:50;not null"`
	Size    int64     `json:"size" gorm:"not null"`
	Created time.Time `json:"created"`
	OwnerID string    `json:"owner_id" gorm:"size:36;not null;index"`

	// 关联
	Owner *User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}

func (UserFile) TableName() string {
	return "user_files"
}
