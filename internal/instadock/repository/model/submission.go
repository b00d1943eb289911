package model

import (
	"time"
)

// Submission 提交表
type Submission struct {
	ID             string    `gorm:"primaryKey;type:text;column:id" json:"id"`                                                       // sub-{递增 ID}
	UserID         string    `gorm:"type:text;not null;index:idx_submissions_user_id;column:user_id" json:"user_id"`                 // 属主用户 ID
	Source         string    `gorm:"type:text;not null;column:source" json:"source"`                                                 // 仓库地址或归档标记
	Branch         string    `gorm:"type:text;not null;column:branch" json:"branch"`                                                 // submission/{user8}/{sub8}
	Status         string    `gorm:"type:text;not null;index:idx_submissions_status;column:status" json:"status"`                    // pending, approved, rejected, built
	ImageReference string    `gorm:"type:text;column:image_reference" json:"image_reference"`                                        // 构建完成后才非空
	CreatedAt      time.Time `gorm:"type:datetime;not null;index:idx_submissions_created_at;column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Submission) TableName() string {
	return "submissions"
}
