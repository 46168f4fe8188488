package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/cache"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/utils"
)

var (
	userService *UserService
	userOnce    sync.Once
)

func User() *UserService {
	userOnce.Do(func() {
		userService = NewUserService(deps)
	})
	return userService
}

// UserService 当前用户资料与通知联系方式
type UserService struct {
	repos *repository.Repositories
}

func NewUserService(d Deps) *UserService {
	return &UserService{repos: d.Repos}
}

func profileKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// GetProfile 先读缓存，缓存不可用时直接查库
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*dto.UserProfile, error) {
	var cached dto.UserProfile
	found, err := cache.ProfileCache.Get(ctx, profileKey(userID), &cached)
	switch {
	case err == nil && found:
		return &cached, nil
	case err == nil:
		// 空值缓存，说明用户不存在
		return nil, pkgerrors.UserNotFound
	case !errors.Is(err, cache.ErrCacheMiss):
		logger.Logger.Debug("Profile cache unavailable", zap.Int64("user_id", userID), zap.Error(err))
	}

	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		if errors.Is(err, pkgerrors.UserNotFound) {
			_ = cache.ProfileCache.Set(ctx, profileKey(userID), nil)
		}
		return nil, err
	}

	profile := toUserProfile(user)
	if err := cache.ProfileCache.Set(ctx, profileKey(userID), profile); err != nil {
		logger.Logger.Debug("Failed to cache profile", zap.Int64("user_id", userID), zap.Error(err))
	}
	return profile, nil
}

// UpdateContact 更新邮箱、手机号与时区，手机号加密存储
func (s *UserService) UpdateContact(ctx context.Context, userID int64, req *dto.UpdateContactRequest) (*dto.UserProfile, error) {
	if _, err := loadUser(ctx, s.repos, userID); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !utils.ValidateEmail(email) {
			return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "invalid email")
		}
		updates["email"] = email
	}
	if req.Phone != nil {
		phone := utils.NormalizePhone(*req.Phone)
		if phone == "" {
			updates["phone_cipher"] = nil
			updates["phone_hash"] = nil
		} else {
			if !utils.ValidatePhone(phone) {
				return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "invalid phone number")
			}
			hash := utils.HashPhone(phone)
			taken, err := s.repos.Users.ExistsByPhoneHash(ctx, hash, userID)
			if err != nil {
				return nil, fmt.Errorf("failed to check phone: %w", err)
			}
			if taken {
				return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "phone number is bound to another user")
			}
			cipher, err := utils.EncryptPhone(phone)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt phone: %w", err)
			}
			updates["phone_cipher"] = cipher
			updates["phone_hash"] = hash
		}
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "invalid timezone %q", tz)
		}
		updates["timezone"] = tz
	}
	if len(updates) == 0 {
		return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "nothing to update")
	}

	if err := s.repos.Users.UpdateContact(ctx, userID, updates); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	if err := cache.ProfileCache.Delete(ctx, profileKey(userID)); err != nil {
		logger.Logger.Debug("Failed to invalidate profile cache", zap.Int64("user_id", userID), zap.Error(err))
	}

	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		return nil, err
	}
	return toUserProfile(user), nil
}
