package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/repository"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/response"
)

// AnalyzeEmotion 单独的表情分析，save=true 时落库
// POST /v1/emotions/analyze
func AnalyzeEmotion(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req dto.AnalyzeEmotionRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	photo, err := readPhoto(c, "photo", req.PhotoBase64)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := service.Emotion().Analyze(ctx, userID, photo, req.Save)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}

// ListEmotionRecords 表情记录分页
// GET /v1/emotions/records
func ListEmotionRecords(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var query struct {
		Page     int `query:"page"`
		PageSize int `query:"page_size"`
	}
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	items, page, err := service.Emotion().ListRecords(ctx, userID, repository.Page{Page: query.Page, PageSize: query.PageSize})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, items, map[string]interface{}{"page": page})
}

// GetEmotionStatistics 情绪统计，scope=family 时统计整个家庭
// GET /v1/emotions/statistics
func GetEmotionStatistics(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var query dto.StatisticsQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	var familyWide bool
	switch query.Scope {
	case "", "self":
	case "family":
		familyWide = true
	default:
		response.Error(ctx, c, errors.WithDetail(errors.InvalidRequest, "unknown scope %q", query.Scope))
		return
	}

	stats := service.Statistics()
	scope, loc, err := stats.ResolveScope(ctx, userID, familyWide)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := stats.EmotionStatistics(ctx, scope, query.Days, time.Now(), loc)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}

// GetEmotionTrends 逐日情绪趋势
// GET /v1/emotions/trends
func GetEmotionTrends(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var query dto.StatisticsQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	stats := service.Statistics()
	_, loc, err := stats.ResolveScope(ctx, userID, false)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	trend, err := stats.EmotionTrends(ctx, userID, query.Days, time.Now(), loc)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, trend)
}
