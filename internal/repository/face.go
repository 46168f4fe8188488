package repository

import (
	"context"

	"gorm.io/gorm"

	"FamilyWell/internal/model"
)

type FaceRepository struct {
	db *gorm.DB
}

// ListActiveTemplates 所有活跃用户的人脸模板，每次调用返回新切片
func (r *FaceRepository) ListActiveTemplates(ctx context.Context) ([]model.FaceTemplate, error) {
	var templates []model.FaceTemplate
	err := r.db.WithContext(ctx).
		Select("face_templates.*").
		Joins("JOIN users ON users.id = face_templates.user_id AND users.deleted_at IS NULL").
		Where("users.status = ?", model.UserStatusActive).
		Order("face_templates.id").
		Find(&templates).Error
	return templates, err
}

func (r *FaceRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.FaceTemplate{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// AddTemplates 追加模板并同步用户的注册状态，返回用户模板总数。
// 用户第一条模板为主模板。
func (r *FaceRepository) AddTemplates(ctx context.Context, userID int64, templates []*model.FaceTemplate) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.FaceTemplate{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return err
		}

		for i, tpl := range templates {
			tpl.UserID = userID
			tpl.IsPrimary = existing == 0 && i == 0
		}
		if len(templates) > 0 {
			if err := tx.Create(&templates).Error; err != nil {
				return err
			}
		}

		total = int(existing) + len(templates)
		return tx.Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"face_registered":      total > 0,
				"face_encodings_count": total,
			}).Error
	})
	return total, err
}
