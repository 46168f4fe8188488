// Package photostore 打卡与人脸照片的持久化
package photostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"FamilyWell/config"
)

// ErrInvalidKey key 为空或试图跳出根目录
var ErrInvalidKey = errors.New("invalid photo key")

// Store 按路径寻址的照片存储，记录中只保存返回的路径
type Store interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Open(ctx context.Context, photoPath string) (io.ReadCloser, error)
}

// New 按配置选择实现
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.PhotoStore {
	case "", "local":
		return NewLocalStore(cfg.PhotoLocalRoot)
	case "gcs":
		return NewGCSStore(ctx, cfg.PhotoGCSBucket, cfg.GCSCredentials)
	default:
		return nil, fmt.Errorf("unknown PHOTO_STORE %q", cfg.PhotoStore)
	}
}

// CheckinKey emotion_photos/<username>/checkin_<YYYYMMDD_HHMMSS>_<millis>.jpg
func CheckinKey(username string, at time.Time) string {
	return fmt.Sprintf("emotion_photos/%s/checkin_%s_%03d.jpg",
		safeSegment(username), at.Format("20060102_150405"), at.Nanosecond()/int(time.Millisecond))
}

// AnalysisKey 独立表情分析的照片
func AnalysisKey(username string, at time.Time) string {
	return fmt.Sprintf("emotion_photos/%s/analysis_%s_%03d.jpg",
		safeSegment(username), at.Format("20060102_150405"), at.Nanosecond()/int(time.Millisecond))
}

// FaceKey faces_db/<username>/face_<n>.jpg
func FaceKey(username string, n int) string {
	return fmt.Sprintf("faces_db/%s/face_%d.jpg", safeSegment(username), n)
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// cleanKey 统一成不带前导斜杠的相对路径
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
