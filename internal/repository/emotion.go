package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"FamilyWell/internal/model"
)

type EmotionRepository struct {
	db *gorm.DB
}

func (r *EmotionRepository) Create(ctx context.Context, record *model.EmotionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListByUserRange 用户在 [since, until) 内的表情记录，按记录时间升序
func (r *EmotionRepository) ListByUserRange(ctx context.Context, userID int64, since, until time.Time) ([]model.EmotionRecord, error) {
	var records []model.EmotionRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND recorded_at >= ? AND recorded_at < ?", userID, since.UTC(), until.UTC()).
		Order("recorded_at, id").
		Find(&records).Error
	return records, err
}

// ListByFamilyRange 家庭在 [since, until) 内的表情记录，按记录时间升序
func (r *EmotionRepository) ListByFamilyRange(ctx context.Context, familyID int64, since, until time.Time) ([]model.EmotionRecord, error) {
	var records []model.EmotionRecord
	err := r.db.WithContext(ctx).
		Where("family_id = ? AND recorded_at >= ? AND recorded_at < ?", familyID, since.UTC(), until.UTC()).
		Order("recorded_at, id").
		Find(&records).Error
	return records, err
}

// List 用户表情记录分页，最新的在前
func (r *EmotionRepository) List(ctx context.Context, userID int64, page Page) ([]model.EmotionRecord, int64, error) {
	page = page.Normalize()

	q := r.db.WithContext(ctx).Model(&model.EmotionRecord{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []model.EmotionRecord
	err := q.Order("recorded_at DESC, id DESC").
		Limit(page.PageSize).
		Offset(page.Offset()).
		Find(&records).Error
	return records, total, err
}
