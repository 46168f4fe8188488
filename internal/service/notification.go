package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
)

// DefaultReadRetention 已读通知保留时长
const DefaultReadRetention = 30 * 24 * time.Hour

// 通知状态只由分发器（pending -> sent/failed）与收件人（sent -> read）推进
type NotificationService struct {
	repos     *repository.Repositories
	publisher DispatchPublisher
	now       func() time.Time
}

var (
	notificationService *NotificationService
	notificationOnce    sync.Once
)

func Notification() *NotificationService {
	notificationOnce.Do(func() {
		notificationService = NewNotificationService(deps)
	})
	return notificationService
}

func NewNotificationService(d Deps) *NotificationService {
	d = d.withDefaults()
	return &NotificationService{repos: d.Repos, publisher: d.Publisher, now: d.Clock}
}

// Enqueue 写入一条待投递通知并投递到队列；投递失败由定时补偿处理，不返回错误
func (s *NotificationService) Enqueue(ctx context.Context, n *model.Notification, source string) error {
	n.Status = model.NotificationStatusPending
	if err := s.repos.Notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	s.publish(ctx, n.ID, source)
	return nil
}

// EnqueueBatch 批量写入，一次插入
func (s *NotificationService) EnqueueBatch(ctx context.Context, items []*model.Notification, source string) error {
	if len(items) == 0 {
		return nil
	}
	for _, n := range items {
		n.Status = model.NotificationStatusPending
	}
	if err := s.repos.Notifications.CreateBatch(ctx, items); err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}
	for _, n := range items {
		s.publish(ctx, n.ID, source)
	}
	return nil
}

func (s *NotificationService) publish(ctx context.Context, id int64, source string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDispatch(ctx, id, source); err != nil {
		logger.Logger.Warn("Failed to publish notification dispatch, left for pending sweep",
			zap.Int64("notification_id", id),
			zap.String("source", source),
			zap.Error(err),
		)
	}
}

// List 收件箱分页，附带未读数
func (s *NotificationService) List(ctx context.Context, userID int64, query dto.NotificationListQuery) (*dto.NotificationListResult, error) {
	filter := repository.NotificationFilter{}
	if query.Type != "" {
		t := model.NotificationType(query.Type)
		switch t {
		case model.NotificationTypeEmail, model.NotificationTypeSMS, model.NotificationTypePush, model.NotificationTypeInApp:
		default:
			return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "unknown notification type %q", query.Type)
		}
		filter.Type = t
	}
	if query.Status != "" {
		st := model.NotificationStatus(query.Status)
		switch st {
		case model.NotificationStatusPending, model.NotificationStatusSending,
			model.NotificationStatusSent, model.NotificationStatusFailed, model.NotificationStatusRead:
		default:
			return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "unknown notification status %q", query.Status)
		}
		filter.Status = st
	}

	page := repository.Page{Page: query.Page, PageSize: query.PageSize}
	items, total, err := s.repos.Notifications.List(ctx, userID, filter, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	unread, err := s.repos.Notifications.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	result := &dto.NotificationListResult{
		Items:       make([]dto.NotificationItem, 0, len(items)),
		Page:        toPage(page, total),
		UnreadCount: unread,
	}
	for i := range items {
		result.Items = append(result.Items, toNotificationItem(&items[i]))
	}
	return result, nil
}

func (s *NotificationService) Get(ctx context.Context, userID, id int64) (*dto.NotificationItem, error) {
	n, err := s.repos.Notifications.GetForRecipient(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotificationNotFound
		}
		return nil, fmt.Errorf("failed to query notification: %w", err)
	}
	item := toNotificationItem(n)
	return &item, nil
}

// MarkRead 只有已发送的通知可以标记已读
func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) (*dto.NotificationItem, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	ok, err := s.repos.Notifications.MarkRead(ctx, id, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	if !ok {
		return nil, pkgerrors.NotificationNotReadable
	}
	return s.Get(ctx, userID, id)
}

// CleanupRead 删除 read_at 早于 asOf-retention 的已读通知
func (s *NotificationService) CleanupRead(ctx context.Context, asOf time.Time, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultReadRetention
	}
	deleted, err := s.repos.Notifications.DeleteReadBefore(ctx, asOf.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete read notifications: %w", err)
	}
	return deleted, nil
}
