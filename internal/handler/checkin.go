package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/response"
)

// SubmitCheckin 提交打卡照片
// POST /v1/checkins
func SubmitCheckin(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req dto.SubmitCheckinRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if isMultipart(c) && req.Location == nil {
		loc, err := formLocation(c)
		if err != nil {
			response.BindError(ctx, c, err)
			return
		}
		req.Location = loc
	}

	photo, err := readPhoto(c, "photo", req.PhotoBase64)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := service.Checkin().Submit(ctx, service.SubmitInput{
		UserID:   userID,
		TaskID:   req.TaskID,
		Photo:    photo,
		Location: req.Location,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, result)
}

// ListCheckinTasks 当前用户需要打卡的任务
// GET /v1/checkins/tasks
func ListCheckinTasks(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	tasks, err := service.Checkin().ListTasks(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, tasks)
}

// ListCheckinRecords 打卡记录分页
// GET /v1/checkins/records
func ListCheckinRecords(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var query dto.CheckinRecordQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	items, page, err := service.Checkin().ListRecords(ctx, userID, query)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, items, map[string]interface{}{"page": page})
}

// GetCheckinStatistics 打卡统计
// GET /v1/checkins/statistics
func GetCheckinStatistics(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var query dto.StatisticsQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	stats, err := service.Statistics().CheckinStatistics(ctx, userID, query.Days, time.Now())
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, stats)
}

// CreateTask 家庭管理员创建打卡任务
// POST /v1/tasks
func CreateTask(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	task, err := service.Checkin().CreateTask(ctx, userID, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, task)
}

// UpdateTask 修改任务，未传的字段保持不变
// PATCH /v1/tasks/:task_id
func UpdateTask(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	taskID, ok := pathID(ctx, c, "task_id")
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	task, err := service.Checkin().UpdateTask(ctx, userID, taskID, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, task)
}
