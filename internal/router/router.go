package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"FamilyWell/internal/handler"
	"FamilyWell/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := h.Group("/v1")

	// 认证相关路由
	auth := v1.Group("/auth")
	auth.Use(middleware.AuthRateLimitMiddleware()) // 认证接口限流
	{
		auth.POST("/token/refresh", handler.RefreshToken)
		auth.POST("/logout", middleware.AuthMiddleware(), handler.Logout)
	}

	// 以下路由均需鉴权，限流按用户计
	authed := v1.Group("", middleware.AuthMiddleware(), middleware.GeneralRateLimitMiddleware())

	users := authed.Group("/users")
	{
		users.GET("/me", handler.GetUserProfile)
		users.PUT("/me/contact", handler.UpdateContact)
	}

	// 打卡
	checkins := authed.Group("/checkins")
	{
		checkins.POST("", middleware.UploadRateLimitMiddleware(), handler.SubmitCheckin)
		checkins.GET("/tasks", handler.ListCheckinTasks)
		checkins.GET("/records", handler.ListCheckinRecords)
		checkins.GET("/statistics", handler.GetCheckinStatistics)
	}

	// 任务管理，仅家庭管理员
	tasks := authed.Group("/tasks")
	{
		tasks.POST("", handler.CreateTask)
		tasks.PATCH("/:task_id", handler.UpdateTask)
	}

	face := authed.Group("/face", middleware.UploadRateLimitMiddleware())
	{
		face.POST("/register", handler.RegisterFace)
		face.POST("/verify", handler.VerifyFace)
	}

	emotions := authed.Group("/emotions")
	{
		emotions.POST("/analyze", middleware.UploadRateLimitMiddleware(), handler.AnalyzeEmotion)
		emotions.GET("/records", handler.ListEmotionRecords)
		emotions.GET("/statistics", handler.GetEmotionStatistics)
		emotions.GET("/trends", handler.GetEmotionTrends)
	}

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", handler.ListNotifications)
		notifications.GET("/:notification_id", handler.GetNotification)
		notifications.POST("/:notification_id/read", handler.MarkNotificationRead)
	}
}
