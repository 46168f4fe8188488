package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/internal/photostore"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/utils"
)

// loadUser 查询活跃用户，停用账号视为不存在
func loadUser(ctx context.Context, repos *repository.Repositories, userID int64) (*model.User, error) {
	if userID <= 0 {
		return nil, pkgerrors.InvalidUserID
	}

	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.UserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if !user.IsActive() {
		return nil, pkgerrors.UserNotFound
	}
	return user, nil
}

// familyOf 用户所属家庭 ID
func familyOf(user *model.User) (int64, error) {
	if user.FamilyID == nil {
		return 0, pkgerrors.FamilyNotFound
	}
	return *user.FamilyID, nil
}

// userLocation 用户时区，无效时退回默认时区
func userLocation(user *model.User, fallback *time.Location) *time.Location {
	return utils.LoadLocation(user.Timezone, fallback)
}

// savePhoto 统一转成 JPEG 后写入照片存储
func savePhoto(ctx context.Context, store photostore.Store, key string, img image.Image) (string, error) {
	if store == nil {
		return "", fmt.Errorf("%w: photo store not configured", pkgerrors.PersistenceFailed)
	}
	data, err := recognition.EncodeJPEG(img)
	if err != nil {
		return "", pkgerrors.InvalidPhoto
	}
	path, err := store.Save(ctx, key, data)
	if err != nil {
		logger.Logger.Error("Failed to save photo", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("%w: %v", pkgerrors.PersistenceFailed, err)
	}
	return path, nil
}
