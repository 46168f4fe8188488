package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/response"
)

// RegisterFace 录入人脸模板，支持 multipart photos 或 JSON base64 数组
// POST /v1/face/register
func RegisterFace(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req dto.RegisterFaceRequest
	if !isMultipart(c) {
		if err := c.Bind(&req); err != nil {
			response.BindError(ctx, c, err)
			return
		}
	}

	photos, err := readPhotos(c, "photos", req.Photos)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	if len(photos) == 0 {
		response.Error(ctx, c, errors.WithDetail(errors.InvalidPhoto, "at least one photo is required"))
		return
	}

	result, err := service.Face().Register(ctx, userID, photos)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, result)
}

// VerifyFace 与已录入模板比对
// POST /v1/face/verify
func VerifyFace(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req dto.VerifyFaceRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	photo, err := readPhoto(c, "photo", req.PhotoBase64)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := service.Face().Verify(ctx, userID, photo)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}
