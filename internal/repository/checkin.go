package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"FamilyWell/internal/model"
)

type CheckinRepository struct {
	db *gorm.DB
}

// CheckinFilter 打卡记录筛选，日期为 YYYY-MM-DD，空值不过滤
type CheckinFilter struct {
	Status   model.CheckinStatus
	FromDate string
	ToDate   string
	TaskID   int64
}

// Exists 同一任务、同一用户、同一天是否已有打卡
func (r *CheckinRepository) Exists(ctx context.Context, taskID, userID int64, date string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CheckinRecord{}).
		Where("task_id = ? AND user_id = ? AND checkin_date = ?", taskID, userID, date).
		Count(&count).Error
	return count > 0, err
}

// CreateWithEmotion 打卡记录与表情记录在同一事务内写入，emotion 可为 nil
func (r *CheckinRepository) CreateWithEmotion(ctx context.Context, record *model.CheckinRecord, emotion *model.EmotionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if emotion == nil {
			return nil
		}
		emotion.CheckinRecordID = &record.ID
		return tx.Create(emotion).Error
	})
}

// ListOnTimeScheduled 指定日期仍为准时且带计划时间的打卡，供迟到巡检使用
func (r *CheckinRepository) ListOnTimeScheduled(ctx context.Context, dates ...string) ([]model.CheckinRecord, error) {
	var records []model.CheckinRecord
	err := r.db.WithContext(ctx).
		Where("checkin_date IN ? AND status = ? AND scheduled_time IS NOT NULL", dates, model.CheckinStatusOnTime).
		Order("id").
		Find(&records).Error
	return records, err
}

// MarkLate 仅当记录仍为准时才改为迟到，返回是否实际更新
func (r *CheckinRepository) MarkLate(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.CheckinRecord{}).
		Where("id = ? AND status = ?", id, model.CheckinStatusOnTime).
		Update("status", model.CheckinStatusLate)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CheckedUserIDs 某任务某天已打卡的用户
func (r *CheckinRepository) CheckedUserIDs(ctx context.Context, taskID int64, date string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.CheckinRecord{}).
		Where("task_id = ? AND checkin_date = ?", taskID, date).
		Pluck("user_id", &ids).Error
	return ids, err
}

// CheckedTaskIDs 用户某天已打卡的任务
func (r *CheckinRepository) CheckedTaskIDs(ctx context.Context, userID int64, date string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.CheckinRecord{}).
		Where("user_id = ? AND checkin_date = ?", userID, date).
		Pluck("task_id", &ids).Error
	return ids, err
}

// LastCheckins 用户在各任务上最近一次打卡时间
func (r *CheckinRepository) LastCheckins(ctx context.Context, userID int64, taskIDs []int64) (map[int64]time.Time, error) {
	last := make(map[int64]time.Time, len(taskIDs))
	if len(taskIDs) == 0 {
		return last, nil
	}

	var records []model.CheckinRecord
	err := r.db.WithContext(ctx).
		Select("task_id", "checkin_time").
		Where("user_id = ? AND task_id IN ?", userID, taskIDs).
		Order("checkin_time DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if _, ok := last[rec.TaskID]; !ok {
			last[rec.TaskID] = rec.CheckinTime
		}
	}
	return last, nil
}

// List 用户打卡记录分页，按打卡时间倒序
func (r *CheckinRepository) List(ctx context.Context, userID int64, filter CheckinFilter, page Page) ([]model.CheckinRecord, int64, error) {
	page = page.Normalize()

	q := r.db.WithContext(ctx).Model(&model.CheckinRecord{}).Where("user_id = ?", userID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.TaskID > 0 {
		q = q.Where("task_id = ?", filter.TaskID)
	}
	if filter.FromDate != "" {
		q = q.Where("checkin_date >= ?", filter.FromDate)
	}
	if filter.ToDate != "" {
		q = q.Where("checkin_date <= ?", filter.ToDate)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []model.CheckinRecord
	err := q.Order("checkin_time DESC, id DESC").
		Limit(page.PageSize).
		Offset(page.Offset()).
		Find(&records).Error
	return records, total, err
}

// ListByUserDates 用户在日期区间 [fromDate, toDate] 内的打卡
func (r *CheckinRepository) ListByUserDates(ctx context.Context, userID int64, fromDate, toDate string) ([]model.CheckinRecord, error) {
	var records []model.CheckinRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND checkin_date >= ? AND checkin_date <= ?", userID, fromDate, toDate).
		Order("checkin_time").
		Find(&records).Error
	return records, err
}

// ListByFamilyDates 家庭在日期区间 [fromDate, toDate] 内的打卡
func (r *CheckinRepository) ListByFamilyDates(ctx context.Context, familyID int64, fromDate, toDate string) ([]model.CheckinRecord, error) {
	var records []model.CheckinRecord
	err := r.db.WithContext(ctx).
		Where("family_id = ? AND checkin_date >= ? AND checkin_date <= ?", familyID, fromDate, toDate).
		Order("checkin_time").
		Find(&records).Error
	return records, err
}
