package repository

import (
	"context"

	"github.com/jimyag/instadock/internal/instadock/repository/model"
	"gorm.io/gorm"
)

// SubmissionRepository 提交仓库接口
type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	List(ctx context.Context, filters map[string]interface{}) ([]*model.Submission, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	// UpdateStatusFrom 只在当前状态等于 from 时更新为 to，
	// 返回是否命中（未命中说明状态已被并发修改）
	UpdateStatusFrom(ctx context.Context, id string, from string, to string) (bool, error)
	// MarkBuilt 只在状态为 approved 时写入镜像引用并置为 built，
	// 返回是否命中（未命中说明状态不对）
	MarkBuilt(ctx context.Context, id string, imageReference string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository 创建提交仓库
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// Create 创建提交记录
func (r *submissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// GetByID 根据 ID 获取提交
func (r *submissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	var submission model.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

// List 列出提交
func (r *submissionRepository) List(ctx context.Context, filters map[string]interface{}) ([]*model.Submission, error) {
	var submissions []*model.Submission
	query := r.db.WithContext(ctx).Model(&model.Submission{})

	// 应用过滤器
	if userID, ok := filters["user_id"]; ok {
		query = query.Where("user_id = ?", userID)
	}
	if status, ok := filters["status"]; ok {
		query = query.Where("status = ?", status)
	}

	if err := query.Order("created_at ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// UpdateStatus 更新提交状态
func (r *submissionRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	return r.db.WithContext(ctx).Model(&model.Submission{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// UpdateStatusFrom 条件更新状态
// 用单条语句做状态守卫，避免读改写之间的竞争
func (r *submissionRepository) UpdateStatusFrom(ctx context.Context, id string, from string, to string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkBuilt 条件更新：approved -> built
// 用单条语句做状态守卫，避免读改写之间的竞争
func (r *submissionRepository) MarkBuilt(ctx context.Context, id string, imageReference string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, "approved").
		Updates(map[string]interface{}{
			"status":          "built",
			"image_reference": imageReference,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete 删除提交记录（物理删除，幂等）
func (r *submissionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.Submission{}, "id = ?", id).Error
}
