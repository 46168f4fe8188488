package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/photostore"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
)

var (
	emotionService *EmotionService
	emotionOnce    sync.Once
)

func Emotion() *EmotionService {
	emotionOnce.Do(func() {
		emotionService = NewEmotionService(deps)
	})
	return emotionService
}

// EmotionService 独立的表情分析，不依赖打卡
type EmotionService struct {
	repos      *repository.Repositories
	photos     photostore.Store
	classifier recognition.Classifier
	now        func() time.Time
	loc        *time.Location
}

func NewEmotionService(d Deps) *EmotionService {
	d = d.withDefaults()
	return &EmotionService{
		repos:      d.Repos,
		photos:     d.Photos,
		classifier: d.Classifier,
		now:        d.Clock,
		loc:        d.Location,
	}
}

// Analyze 分类失败直接返回错误；save 为 true 时保存照片与情绪记录
func (s *EmotionService) Analyze(ctx context.Context, userID int64, photo []byte, save bool) (*dto.AnalyzeEmotionResponse, error) {
	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		return nil, err
	}
	if len(photo) == 0 {
		return nil, pkgerrors.WithDetail(pkgerrors.InvalidPhoto, "photo is required")
	}
	img, err := recognition.DecodeImage(photo)
	if err != nil {
		return nil, pkgerrors.InvalidPhoto
	}
	if s.classifier == nil {
		return nil, pkgerrors.ModelNotLoaded
	}

	result, err := s.classifier.Classify(ctx, recognition.NormalizeForEmotion(img))
	if err != nil {
		logger.Logger.Warn("Emotion analysis failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, pkgerrors.ModelNotLoaded
	}

	analysis := model.AnalysisText(result.Emotion, result.Confidence)
	resp := &dto.AnalyzeEmotionResponse{
		Emotion:  *toEmotionResult(result),
		Analysis: analysis,
	}
	if !save {
		return resp, nil
	}

	now := s.now()
	path, err := savePhoto(ctx, s.photos, photostore.AnalysisKey(user.Username, now.In(userLocation(user, s.loc))), img)
	if err != nil {
		return nil, err
	}

	rec := &model.EmotionRecord{
		UserID:        user.ID,
		FamilyID:      user.FamilyID,
		Emotion:       result.Emotion,
		Confidence:    result.Confidence,
		Probabilities: result.Probabilities,
		PhotoPath:     path,
		AIAnalysis:    analysis,
		RecordedAt:    now.UTC(),
	}
	if err := s.repos.Emotions.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.PersistenceFailed, err)
	}

	resp.RecordID = &rec.ID
	resp.PhotoPath = path
	return resp, nil
}

func (s *EmotionService) ListRecords(ctx context.Context, userID int64, page repository.Page) ([]dto.EmotionRecordItem, dto.Page, error) {
	records, total, err := s.repos.Emotions.List(ctx, userID, page)
	if err != nil {
		return nil, dto.Page{}, fmt.Errorf("failed to list emotion records: %w", err)
	}

	items := make([]dto.EmotionRecordItem, 0, len(records))
	for i := range records {
		items = append(items, toEmotionRecordItem(&records[i]))
	}
	return items, toPage(page, total), nil
}
