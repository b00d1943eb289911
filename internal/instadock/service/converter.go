// Package service 提供业务逻辑层的服务实现
package service

import (
	"time"

	"github.com/jimyag/instadock/internal/instadock/entity"
	"github.com/jimyag/instadock/internal/instadock/repository/model"
	"github.com/jinzhu/copier"
)

// instanceModelToEntity 将 model.Instance 转换为 entity.Instance
func instanceModelToEntity(m *model.Instance) (*entity.Instance, error) {
	e := &entity.Instance{}
	if err := copier.Copy(e, m); err != nil {
		return nil, err
	}

	// 处理时间字段
	// ExpiresAt 在两边都是文本，copier 直接拷贝，损坏的值原样保留
	e.CreatedAt = m.CreatedAt.Format(time.RFC3339)

	return e, nil
}

// submissionModelToEntity 将 model.Submission 转换为 entity.Submission
func submissionModelToEntity(m *model.Submission) (*entity.Submission, error) {
	e := &entity.Submission{}
	if err := copier.Copy(e, m); err != nil {
		return nil, err
	}

	// 处理时间字段
	e.CreatedAt = m.CreatedAt.Format(time.RFC3339)

	return e, nil
}
