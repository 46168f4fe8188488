package dto

import "time"

// ========== Notification 相关 DTO ==========

// NotificationListQuery 通知列表查询参数
type NotificationListQuery struct {
	Type     string `query:"type"`
	Status   string `query:"status"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// NotificationItem 通知项
type NotificationItem struct {
	CreatedAt        time.Time  `json:"created_at"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	RelatedID        *int64     `json:"related_id,omitempty"`
	NotificationType string     `json:"notification_type"`
	Subject          string     `json:"subject"`
	Content          string     `json:"content"`
	RelatedType      string     `json:"related_type,omitempty"`
	Status           string     `json:"status"`
	ID               int64      `json:"id"`
}

// NotificationListResult 通知列表结果
type NotificationListResult struct {
	Items       []NotificationItem `json:"items"`
	Page        Page               `json:"page"`
	UnreadCount int64              `json:"unread_count"`
}
