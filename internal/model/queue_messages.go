package model

import "time"

// NotificationDispatchMessage 通知投递消息，worker 按 ID 拉取后发送
type NotificationDispatchMessage struct {
	EnqueuedAt     time.Time `json:"enqueued_at"`
	MessageID      string    `json:"message_id"`
	Source         string    `json:"source"`
	NotificationID int64     `json:"notification_id"`
}
