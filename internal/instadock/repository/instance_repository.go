package repository

import (
	"context"
	"errors"

	"github.com/jimyag/instadock/internal/instadock/repository/model"
	"gorm.io/gorm"
)

// ErrQuotaExceeded 表示用户 running 实例数已达配额上限
var ErrQuotaExceeded = errors.New("instance quota exceeded")

// InstanceRepository 实例仓库接口
type InstanceRepository interface {
	Create(ctx context.Context, instance *model.Instance) error
	// CreateWithinQuota 在同一事务内检查配额并插入，
	// 配额已满时返回 ErrQuotaExceeded 且不插入
	CreateWithinQuota(ctx context.Context, instance *model.Instance, quota int) error
	GetByID(ctx context.Context, id string) (*model.Instance, error)
	List(ctx context.Context, filters map[string]interface{}) ([]*model.Instance, error)
	CountRunningByUser(ctx context.Context, userID string) (int64, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	Delete(ctx context.Context, id string) error
}

type instanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository 创建实例仓库
func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

// Create 创建实例记录
func (r *instanceRepository) Create(ctx context.Context, instance *model.Instance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

// CreateWithinQuota 配额检查和插入在一个事务内完成
// 并发创建同一用户的实例时，最多只有配额内的插入会成功
func (r *instanceRepository) CreateWithinQuota(ctx context.Context, instance *model.Instance, quota int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Instance{}).
			Where("user_id = ? AND status = ?", instance.UserID, "running").
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(quota) {
			return ErrQuotaExceeded
		}
		return tx.Create(instance).Error
	})
}

// GetByID 根据 ID 获取实例
func (r *instanceRepository) GetByID(ctx context.Context, id string) (*model.Instance, error) {
	var instance model.Instance
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

// List 列出实例
func (r *instanceRepository) List(ctx context.Context, filters map[string]interface{}) ([]*model.Instance, error) {
	var instances []*model.Instance
	query := r.db.WithContext(ctx).Model(&model.Instance{})

	// 应用过滤器
	if userID, ok := filters["user_id"]; ok {
		query = query.Where("user_id = ?", userID)
	}
	if status, ok := filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if submissionID, ok := filters["submission_id"]; ok {
		query = query.Where("submission_id = ?", submissionID)
	}

	if err := query.Find(&instances).Error; err != nil {
		return nil, err
	}

	return instances, nil
}

// CountRunningByUser 统计用户 running 状态的实例数
func (r *instanceRepository) CountRunningByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Instance{}).
		Where("user_id = ? AND status = ?", userID, "running").
		Count(&count).Error
	return count, err
}

// UpdateStatus 更新实例状态
func (r *instanceRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	return r.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete 删除实例记录（物理删除，幂等）
func (r *instanceRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.Instance{}, "id = ?", id).Error
}
