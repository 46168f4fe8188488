package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/metrics"
	"FamilyWell/utils"
)

const (
	maxErrorMessageLength = 1000

	// claimTimeout 超过该时长仍处于 sending 的通知视为分发器中途退出，退回 pending
	claimTimeout = 10 * time.Minute
)

type deliveryResult int

const (
	deliverySkipped deliveryResult = iota
	deliverySent
	deliveryFailed
)

var (
	errChannelNotConfigured = errors.New("notification channel not configured")
	errNoPhone              = errors.New("收件人手机号为空")
	errUnknownChannel       = errors.New("unknown notification type")
)

var (
	dispatcher     *Dispatcher
	dispatcherOnce sync.Once
)

func NotificationDispatcher() *Dispatcher {
	dispatcherOnce.Do(func() {
		dispatcher = NewDispatcher(deps)
	})
	return dispatcher
}

// Dispatcher 把 pending 通知投递到对应渠道，结果只写回通知本身
type Dispatcher struct {
	repos *repository.Repositories
	email EmailSender
	push  PushSender
	sms   SMSSender
	now   func() time.Time
}

func NewDispatcher(d Deps) *Dispatcher {
	d = d.withDefaults()
	return &Dispatcher{
		repos: d.Repos,
		email: d.Email,
		push:  d.Push,
		sms:   d.SMS,
		now:   d.Clock,
	}
}

// Dispatch 投递单条通知；非 pending 状态直接跳过
func (d *Dispatcher) Dispatch(ctx context.Context, id int64) error {
	n, err := d.repos.Notifications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.NotificationNotFound
		}
		return fmt.Errorf("failed to query notification: %w", err)
	}
	if n.Status != model.NotificationStatusPending {
		return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("notification %d is %s", n.ID, n.Status)}
	}

	result, err := d.deliver(ctx, n)
	if err != nil {
		return err
	}
	if result == deliverySkipped {
		return &pkgerrors.SkipMessageError{Reason: fmt.Sprintf("notification %d claimed by another dispatcher", n.ID)}
	}
	return nil
}

// DispatchPending 扫描 pending 通知逐条投递，返回成功与失败数
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) (sent, failed int, err error) {
	if limit <= 0 {
		limit = 100
	}
	if n, err := d.repos.Notifications.RequeueStale(ctx, d.now().Add(-claimTimeout)); err != nil {
		logger.Logger.Warn("Failed to requeue stale notifications", zap.Error(err))
	} else if n > 0 {
		logger.Logger.Warn("Requeued stale notifications", zap.Int64("count", n))
	}

	items, err := d.repos.Notifications.ListPending(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	var errs []error
	for i := range items {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		result, err := d.deliver(ctx, &items[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch result {
		case deliverySent:
			sent++
		case deliveryFailed:
			failed++
		}
	}
	return sent, failed, errors.Join(errs...)
}

// deliver 先把通知从 pending 领取为 sending，领取成功的一方才调用渠道；
// 渠道失败记录在通知上，只有写库失败才返回错误
func (d *Dispatcher) deliver(ctx context.Context, n *model.Notification) (deliveryResult, error) {
	claimed, err := d.repos.Notifications.Claim(ctx, n.ID, d.now())
	if err != nil {
		return deliverySkipped, fmt.Errorf("failed to claim notification %d: %w", n.ID, err)
	}
	if !claimed {
		logger.Logger.Info("Notification already claimed by another dispatcher", zap.Int64("notification_id", n.ID))
		return deliverySkipped, nil
	}

	start := time.Now()
	sendErr := d.send(ctx, n)
	channel := string(n.NotificationType)

	if sendErr != nil {
		metrics.RecordNotification(ctx, channel, "failed", time.Since(start))
		logger.Logger.Warn("Notification delivery failed",
			zap.Int64("notification_id", n.ID),
			zap.String("type", channel),
			zap.Error(sendErr),
		)
		if _, err := d.repos.Notifications.MarkFailed(ctx, n.ID, truncateError(sendErr)); err != nil {
			return deliveryFailed, fmt.Errorf("failed to mark notification %d failed: %w", n.ID, err)
		}
		return deliveryFailed, nil
	}

	metrics.RecordNotification(ctx, channel, "sent", time.Since(start))
	updated, err := d.repos.Notifications.MarkSent(ctx, n.ID, d.now())
	if err != nil {
		return deliverySent, fmt.Errorf("failed to mark notification %d sent: %w", n.ID, err)
	}
	if !updated {
		logger.Logger.Warn("Notification claim was requeued before it was marked sent", zap.Int64("notification_id", n.ID))
	}
	return deliverySent, nil
}

func (d *Dispatcher) send(ctx context.Context, n *model.Notification) error {
	switch n.NotificationType {
	case model.NotificationTypeInApp:
		return nil
	case model.NotificationTypeEmail:
		if d.email == nil {
			return errChannelNotConfigured
		}
		return d.email.Send(ctx, n.RecipientEmail, n.Subject, n.Content)
	case model.NotificationTypePush:
		if d.push == nil {
			return errChannelNotConfigured
		}
		return d.push.Send(ctx, n.Subject, n.Content)
	case model.NotificationTypeSMS:
		if d.sms == nil {
			return errChannelNotConfigured
		}
		phone, err := d.recipientPhone(ctx, n.RecipientID)
		if err != nil {
			return err
		}
		return d.sms.Notify(ctx, phone, n.Subject, n.Content)
	default:
		return fmt.Errorf("%w: %s", errUnknownChannel, n.NotificationType)
	}
}

func (d *Dispatcher) recipientPhone(ctx context.Context, userID int64) (string, error) {
	user, err := d.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to query recipient: %w", err)
	}
	if len(user.PhoneCipher) == 0 {
		return "", errNoPhone
	}
	phone, err := utils.DecryptPhone(user.PhoneCipher)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt phone: %w", err)
	}
	if strings.TrimSpace(phone) == "" {
		return "", errNoPhone
	}
	return phone, nil
}

func truncateError(err error) string {
	msg := err.Error()
	if r := []rune(msg); len(r) > maxErrorMessageLength {
		return string(r[:maxErrorMessageLength])
	}
	return msg
}
