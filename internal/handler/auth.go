package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/response"
)

// RefreshToken 刷新访问令牌
// POST /v1/auth/token/refresh
func RefreshToken(ctx context.Context, c *app.RequestContext) {
	var req dto.RefreshTokenRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	tokens, err := service.Auth().RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, tokens)
}

// Logout 吊销当前用户的 refresh token
// POST /v1/auth/logout
func Logout(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	if err := service.Auth().Logout(ctx, userID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]bool{"logged_out": true})
}
