package model

import (
	"time"
)

// Instance 实例表
// 删除即物理删除，不做软删除：行的存在表示平台仍认领这个容器
type Instance struct {
	ID           string    `gorm:"primaryKey;type:text;column:id" json:"id"`                                                       // 容器 ID（12 位短格式）
	UserID       string    `gorm:"type:text;not null;index:idx_instances_user_id;column:user_id" json:"user_id"`                   // 属主用户 ID
	SubmissionID string    `gorm:"type:text;index:idx_instances_submission_id;column:submission_id" json:"submission_id"`          // 来源提交 ID，可为空
	Image        string    `gorm:"type:text;not null;column:image" json:"image"`                                                   // 镜像引用
	URL          string    `gorm:"type:text;not null;column:url" json:"url"`                                                       // 路由地址
	Port         uint16    `gorm:"type:integer;not null;column:port" json:"port"`                                                  // 宿主机端口
	ExpiresAt    string    `gorm:"type:text;not null;column:expires_at" json:"expires_at"`                                         // 过期时间，ISO-8601 文本，损坏的值也要能表示
	Status       string    `gorm:"type:text;not null;index:idx_instances_status;column:status" json:"status"`                      // running, stopped
	CreatedAt    time.Time `gorm:"type:datetime;not null;index:idx_instances_created_at;column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

// TableName 指定表名
func (Instance) TableName() string {
	return "instances"
}
