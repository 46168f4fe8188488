package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"FamilyWell/internal/middleware"
	"FamilyWell/internal/recognition"
	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/response"
)

// 单张照片上限
const maxPhotoBytes = 10 << 20

// currentUser 取不到用户时已写入 401
func currentUser(ctx context.Context, c *app.RequestContext) (int64, bool) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return 0, false
	}
	return userID, true
}

// pathID 解析路径中的数字 ID，失败时已写入 400
func pathID(ctx context.Context, c *app.RequestContext, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(ctx, c, errors.WithDetail(errors.InvalidRequest, "invalid %s", name))
		return 0, false
	}
	return id, true
}

func isMultipart(c *app.RequestContext) bool {
	return strings.HasPrefix(string(c.ContentType()), "multipart/")
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxPhotoBytes {
		return nil, errors.WithDetail(errors.InvalidPhoto, "photo exceeds %d bytes", maxPhotoBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.WithDetail(errors.InvalidPhoto, "cannot open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return nil, errors.WithDetail(errors.InvalidPhoto, "cannot read upload")
	}
	if len(data) > maxPhotoBytes {
		return nil, errors.WithDetail(errors.InvalidPhoto, "photo exceeds %d bytes", maxPhotoBytes)
	}
	return data, nil
}

// readPhoto multipart 时取 field 文件，否则解码 base64 字段
func readPhoto(c *app.RequestContext, field, encoded string) ([]byte, error) {
	if isMultipart(c) {
		if fh, err := c.FormFile(field); err == nil {
			return readFile(fh)
		}
	}
	if encoded == "" {
		return nil, errors.WithDetail(errors.InvalidPhoto, "photo is required")
	}
	return decodePhoto("photo", encoded)
}

// decodePhoto base64 或 data URI，解码后同样受单张大小限制
func decodePhoto(label, encoded string) ([]byte, error) {
	data, err := recognition.DecodePayload(encoded)
	if err != nil {
		return nil, errors.WithDetail(errors.InvalidPhoto, "%s: %v", label, err)
	}
	if len(data) > maxPhotoBytes {
		return nil, errors.WithDetail(errors.InvalidPhoto, "%s exceeds %d bytes", label, maxPhotoBytes)
	}
	return data, nil
}

// readPhotos 人脸录入的多张照片
func readPhotos(c *app.RequestContext, field string, encoded []string) ([][]byte, error) {
	var photos [][]byte
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err == nil {
			for _, fh := range form.File[field] {
				data, err := readFile(fh)
				if err != nil {
					return nil, err
				}
				photos = append(photos, data)
			}
		}
	}
	for i, p := range encoded {
		data, err := decodePhoto(fmt.Sprintf("photo %d", i+1), p)
		if err != nil {
			return nil, err
		}
		photos = append(photos, data)
	}
	return photos, nil
}

// formLocation multipart 中 location 以 JSON 字符串提交
func formLocation(c *app.RequestContext) (map[string]interface{}, error) {
	raw := c.PostForm("location")
	if raw == "" {
		return nil, nil
	}
	var loc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}
	return loc, nil
}
