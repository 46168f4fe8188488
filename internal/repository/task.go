package repository

import (
	"context"

	"gorm.io/gorm"

	"FamilyWell/internal/model"
)

type TaskRepository struct {
	db *gorm.DB
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*model.CheckinTask, error) {
	var task model.CheckinTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// GetActiveInFamily 任务必须属于该家庭且处于启用状态
func (r *TaskRepository) GetActiveInFamily(ctx context.Context, id, familyID int64) (*model.CheckinTask, error) {
	var task model.CheckinTask
	err := r.db.WithContext(ctx).
		Where("id = ? AND family_id = ? AND is_active = ?", id, familyID, true).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListActive 全部启用任务，taskType 为空时不按类型过滤
func (r *TaskRepository) ListActive(ctx context.Context, taskType model.TaskType) ([]model.CheckinTask, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if taskType != "" {
		q = q.Where("task_type = ?", taskType)
	}

	var tasks []model.CheckinTask
	err := q.Order("family_id, id").Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) ListActiveByFamily(ctx context.Context, familyID int64) ([]model.CheckinTask, error) {
	var tasks []model.CheckinTask
	err := r.db.WithContext(ctx).
		Where("family_id = ? AND is_active = ?", familyID, true).
		Order("id").
		Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) Create(ctx context.Context, task *model.CheckinTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// Save 整行更新，is_active 等零值也会写入
func (r *TaskRepository) Save(ctx context.Context, task *model.CheckinTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}
