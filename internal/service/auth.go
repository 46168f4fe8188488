package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"FamilyWell/internal/cache"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/token"
)

var (
	authService *AuthService
	authOnce    sync.Once
)

func Auth() *AuthService {
	authOnce.Do(func() {
		authService = NewAuthService(deps)
	})
	return authService
}

// AuthService 只负责 token 续期与注销，登录由外部账号系统完成
type AuthService struct {
	repos *repository.Repositories
}

func NewAuthService(d Deps) *AuthService {
	return &AuthService{repos: d.Repos}
}

// IssueTokens 为已认证用户签发一组 token，并记录 refresh token ID
func (s *AuthService) IssueTokens(ctx context.Context, userID int64) (*dto.TokenResponse, error) {
	pair, err := token.GenerateTokenPair(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := cache.SetRefreshToken(ctx, userID, pair.RefreshID, token.RefreshTTL()); err != nil {
		logger.Logger.Warn("Failed to store refresh token in Redis",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}

	return &dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// RefreshToken 轮换 refresh token，旧 token 立即失效
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	userID, refreshID, err := token.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, pkgerrors.Unauthorized
	}

	valid, err := cache.RefreshTokenValid(ctx, userID, refreshID)
	if err != nil {
		logger.Logger.Warn("Failed to validate refresh token",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil, pkgerrors.Unauthorized
	}
	if !valid {
		return nil, pkgerrors.Unauthorized
	}

	if _, err := loadUser(ctx, s.repos, userID); err != nil {
		return nil, pkgerrors.Unauthorized
	}

	return s.IssueTokens(ctx, userID)
}

// Logout 删除 refresh token，access token 自然过期
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	if err := cache.DeleteRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}
