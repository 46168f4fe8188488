package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"FamilyWell/internal/cache"
	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/photostore"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
)

const defaultTemplateQuality = 1.0

var (
	faceService *FaceService
	faceOnce    sync.Once
)

func Face() *FaceService {
	faceOnce.Do(func() {
		faceService = NewFaceService(deps)
	})
	return faceService
}

// FaceService 人脸录入与比对
type FaceService struct {
	repos     *repository.Repositories
	photos    photostore.Store
	verifier  recognition.Verifier
	maxImages int
}

func NewFaceService(d Deps) *FaceService {
	d = d.withDefaults()
	return &FaceService{
		repos:     d.Repos,
		photos:    d.Photos,
		verifier:  d.Verifier,
		maxImages: d.MaxFaceImages,
	}
}

// Register 录入 1 到 maxImages 张照片，单张失败不影响其他照片
func (s *FaceService) Register(ctx context.Context, userID int64, photos [][]byte) (*dto.RegisterFaceResponse, error) {
	if len(photos) == 0 || len(photos) > s.maxImages {
		return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "1-%d photos are required", s.maxImages)
	}
	if s.verifier == nil {
		return nil, pkgerrors.ModelNotLoaded
	}

	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repos.Faces.CountByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count face templates: %w", err)
	}

	resp := &dto.RegisterFaceResponse{}
	templates := make([]*model.FaceTemplate, 0, len(photos))
	for i, data := range photos {
		label := fmt.Sprintf("photo %d", i+1)

		img, err := recognition.DecodeImage(data)
		if err != nil {
			resp.Failed = append(resp.Failed, label+": invalid image")
			continue
		}

		vec, err := s.verifier.Embed(ctx, img)
		if err != nil {
			if isModelUnavailable(err) {
				return nil, pkgerrors.ModelNotLoaded
			}
			logger.Logger.Warn("Face embedding failed", zap.Int64("user_id", user.ID), zap.Int("photo", i+1), zap.Error(err))
			resp.Failed = append(resp.Failed, label+": no face detected")
			continue
		}

		n := int(existing) + len(templates) + 1
		path, err := savePhoto(ctx, s.photos, photostore.FaceKey(user.Username, n), img)
		if err != nil {
			return nil, err
		}
		templates = append(templates, model.NewFaceTemplate(user.ID, vec, path, defaultTemplateQuality))
	}

	if len(templates) == 0 {
		return nil, pkgerrors.NoFaceEnrolled
	}

	total, err := s.repos.Faces.AddTemplates(ctx, user.ID, templates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.PersistenceFailed, err)
	}
	if err := cache.ProfileCache.Delete(ctx, profileKey(user.ID)); err != nil {
		logger.Logger.Debug("Failed to invalidate profile cache", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	logger.Logger.Info("Face templates registered",
		zap.Int64("user_id", user.ID),
		zap.Int("registered", len(templates)),
		zap.Int("total", total),
	)

	resp.Registered = len(templates)
	resp.TotalTemplates = total
	return resp, nil
}

// Verify 在所有已录入用户中查找最近的人脸
func (s *FaceService) Verify(ctx context.Context, userID int64, photo []byte) (*dto.VerifyFaceResponse, error) {
	if _, err := loadUser(ctx, s.repos, userID); err != nil {
		return nil, err
	}
	if len(photo) == 0 {
		return nil, pkgerrors.WithDetail(pkgerrors.InvalidPhoto, "photo is required")
	}
	img, err := recognition.DecodeImage(photo)
	if err != nil {
		return nil, pkgerrors.InvalidPhoto
	}
	if s.verifier == nil {
		return nil, pkgerrors.ModelNotLoaded
	}

	match, err := s.verifier.Recognize(ctx, img)
	if err != nil {
		if isModelUnavailable(err) {
			return nil, pkgerrors.ModelNotLoaded
		}
		return nil, fmt.Errorf("failed to recognize face: %w", err)
	}

	resp := &dto.VerifyFaceResponse{Distance: match.Distance, Verified: match.Found}
	if match.Found {
		id := match.UserID
		resp.RecognizedUserID = &id
		resp.IsCurrentUser = id == userID
	}
	return resp, nil
}

// isModelUnavailable 模型未加载或熔断打开
func isModelUnavailable(err error) bool {
	return errors.Is(err, recognition.ErrNotLoaded) || errors.Is(err, cache.ErrBreakerOpen)
}
