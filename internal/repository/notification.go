package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/storage/database"
)

type NotificationRepository struct {
	db *gorm.DB
}

// NotificationFilter 收件箱筛选
type NotificationFilter struct {
	Type   model.NotificationType
	Status model.NotificationStatus
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) CreateBatch(ctx context.Context, items []*model.Notification) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// GetByID 走主库，worker 收到消息时记录可能尚未同步到副本
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	if err := database.Primary(r.db.WithContext(ctx)).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// GetForRecipient 只能读取发给自己的通知
func (r *NotificationRepository) GetForRecipient(ctx context.Context, id, recipientID int64) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListPending 待投递通知，按 ID 升序
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]model.Notification, error) {
	var items []model.Notification
	err := database.Primary(r.db.WithContext(ctx)).
		Where("status = ?", model.NotificationStatusPending).
		Order("id").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *NotificationRepository) List(ctx context.Context, recipientID int64, filter NotificationFilter, page Page) ([]model.Notification, int64, error) {
	page = page.Normalize()

	q := r.db.WithContext(ctx).Model(&model.Notification{}).Where("recipient_id = ?", recipientID)
	if filter.Type != "" {
		q = q.Where("notification_type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []model.Notification
	err := q.Order("created_at DESC, id DESC").
		Limit(page.PageSize).
		Offset(page.Offset()).
		Find(&items).Error
	return items, total, err
}

// CountUnread 待发送、发送中与已发送都算未读
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_id = ? AND status IN ?", recipientID,
			[]model.NotificationStatus{model.NotificationStatusPending, model.NotificationStatusSending, model.NotificationStatusSent}).
		Count(&count).Error
	return count, err
}

// Claim pending 改为 sending，返回 false 表示已被其他分发器领取
func (r *NotificationRepository) Claim(ctx context.Context, id int64, at time.Time) (bool, error) {
	at = at.UTC()
	return r.transition(ctx, id, model.NotificationStatusPending, map[string]interface{}{
		"status":     model.NotificationStatusSending,
		"claimed_at": &at,
	})
}

// RequeueStale 领取时间早于 cutoff 仍在 sending 的通知退回 pending，分发器中途退出时使用
func (r *NotificationRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("status = ? AND claimed_at < ?", model.NotificationStatusSending, cutoff.UTC()).
		Updates(map[string]interface{}{
			"status":     model.NotificationStatusPending,
			"claimed_at": nil,
		})
	return res.RowsAffected, res.Error
}

// MarkSent 只有 sending 状态可以改为 sent
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	at = at.UTC()
	return r.transition(ctx, id, model.NotificationStatusSending, map[string]interface{}{
		"status":        model.NotificationStatusSent,
		"sent_at":       &at,
		"error_message": "",
	})
}

// MarkFailed 只有 sending 状态可以改为 failed
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	return r.transition(ctx, id, model.NotificationStatusSending, map[string]interface{}{
		"status":        model.NotificationStatusFailed,
		"error_message": reason,
	})
}

// MarkRead 只有 sent 状态可以改为 read
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID int64, at time.Time) (bool, error) {
	at = at.UTC()
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ? AND status = ?", id, recipientID, model.NotificationStatusSent).
		Updates(map[string]interface{}{
			"status":  model.NotificationStatusRead,
			"read_at": &at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *NotificationRepository) transition(ctx context.Context, id int64, from model.NotificationStatus, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteReadBefore 物理删除 read_at 早于 cutoff 的已读通知
func (r *NotificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Unscoped().
		Where("status = ? AND read_at < ?", model.NotificationStatusRead, cutoff.UTC()).
		Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}
