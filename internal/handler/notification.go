package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/response"
)

// ListNotifications 收件箱
// GET /v1/notifications
func ListNotifications(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var query dto.NotificationListQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := service.Notification().List(ctx, userID, query)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}

// GetNotification 通知详情，只能查看自己的通知
// GET /v1/notifications/:notification_id
func GetNotification(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "notification_id")
	if !ok {
		return
	}

	item, err := service.Notification().Get(ctx, userID, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, item)
}

// MarkNotificationRead 标记已读
// POST /v1/notifications/:notification_id/read
func MarkNotificationRead(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	id, ok := pathID(ctx, c, "notification_id")
	if !ok {
		return
	}

	item, err := service.Notification().MarkRead(ctx, userID, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, item)
}
