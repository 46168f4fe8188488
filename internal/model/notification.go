package model

import "time"

// NotificationType 通知渠道
type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
	NotificationTypeSMS   NotificationType = "sms"
	NotificationTypePush  NotificationType = "push"
	NotificationTypeInApp NotificationType = "in_app"
)

// NotificationStatus 通知状态
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSending NotificationStatus = "sending" // 已被分发器领取，正在调用渠道
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusRead    NotificationStatus = "read"
)

// 关联对象类型
const (
	RelatedCheckinTask   = "checkin_task"
	RelatedEmotionRecord = "emotion_record"
	RelatedEmotionTrend  = "emotion_trend"
	RelatedWeeklyReport  = "weekly_report"
)

// Notification 通知记录，由打卡与巡检创建，由分发器投递
type Notification struct {
	BaseModel
	NotificationType NotificationType   `gorm:"type:varchar(16);not null" json:"notification_type"`
	RecipientID      int64              `gorm:"not null;index:idx_notifications_recipient_status" json:"recipient_id"`
	RecipientEmail   string             `gorm:"type:varchar(254);not null;default:''" json:"recipient_email"`
	Subject          string             `gorm:"type:varchar(200);not null" json:"subject"`
	Content          string             `gorm:"type:text;not null" json:"content"`
	RelatedType      string             `gorm:"type:varchar(50);not null;default:''" json:"related_type"`
	RelatedID        *int64             `json:"related_id,omitempty"`
	Status           NotificationStatus `gorm:"type:varchar(16);not null;index:idx_notifications_recipient_status;index" json:"status"`
	ClaimedAt        *time.Time         `json:"-"`
	SentAt           *time.Time         `json:"sent_at,omitempty"`
	ReadAt           *time.Time         `gorm:"index" json:"read_at,omitempty"`
	ErrorMessage     string             `gorm:"type:text;not null;default:''" json:"error_message,omitempty"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}

// IsUnread 待发送、发送中或已发送未读
func (n *Notification) IsUnread() bool {
	switch n.Status {
	case NotificationStatusPending, NotificationStatusSending, NotificationStatusSent:
		return true
	}
	return false
}
