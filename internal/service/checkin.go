package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/photostore"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/metrics"
	"FamilyWell/utils"
)

var (
	checkinService *CheckinService
	checkinOnce    sync.Once
)

func Checkin() *CheckinService {
	checkinOnce.Do(func() {
		checkinService = NewCheckinService(deps)
	})
	return checkinService
}

// CheckinService 打卡裁决：照片落盘、身份比对、表情识别、状态判定与落库
type CheckinService struct {
	repos          *repository.Repositories
	photos         photostore.Store
	verifier       recognition.Verifier
	classifier     recognition.Classifier
	notifications  *NotificationService
	now            func() time.Time
	loc            *time.Location
	grace          time.Duration
	alertThreshold float64
}

func NewCheckinService(d Deps) *CheckinService {
	d = d.withDefaults()
	return &CheckinService{
		repos:          d.Repos,
		photos:         d.Photos,
		verifier:       d.Verifier,
		classifier:     d.Classifier,
		notifications:  NewNotificationService(d),
		now:            d.Clock,
		loc:            d.Location,
		grace:          d.Grace,
		alertThreshold: d.AlertThreshold,
	}
}

// SubmitInput 一次打卡提交
type SubmitInput struct {
	Location map[string]interface{}
	Photo    []byte
	TaskID   int64
	UserID   int64
}

// Submit 处理一次打卡提交
func (s *CheckinService) Submit(ctx context.Context, in SubmitInput) (*dto.CheckinOutcome, error) {
	if in.TaskID <= 0 {
		return nil, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "task_id is required")
	}

	user, err := loadUser(ctx, s.repos, in.UserID)
	if err != nil {
		return nil, err
	}
	familyID, err := familyOf(user)
	if err != nil {
		return nil, err
	}

	task, err := s.repos.Tasks.GetActiveInFamily(ctx, in.TaskID, familyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.TaskNotFound
		}
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	if !task.Targets(user.ID) {
		return nil, pkgerrors.TaskNotFound
	}

	now := s.now()
	loc := userLocation(user, s.loc)
	local := now.In(loc)
	date := utils.DateKey(now, loc)

	exists, err := s.repos.Checkins.Exists(ctx, task.ID, user.ID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing checkin: %w", err)
	}
	if exists {
		return nil, pkgerrors.AlreadyCheckedIn
	}

	if len(in.Photo) == 0 {
		return nil, pkgerrors.WithDetail(pkgerrors.InvalidPhoto, "photo is required")
	}
	img, err := recognition.DecodeImage(in.Photo)
	if err != nil {
		return nil, pkgerrors.InvalidPhoto
	}

	// 先落盘照片，识别失败也留有证据
	photoPath, err := s.savePhoto(ctx, photostore.CheckinKey(user.Username, local), img)
	if err != nil {
		return nil, err
	}

	faceVerified := s.verifyIdentity(ctx, user, img)
	result := s.classify(ctx, user.ID, img)

	scheduled, err := task.ScheduledAt(local)
	if err != nil {
		logger.Logger.Warn("Invalid task schedule time",
			zap.Int64("task_id", task.ID),
			zap.String("time", task.ScheduleConfig.Time),
			zap.Error(err),
		)
		scheduled = nil
	}
	status := model.CheckinStatusOnTime
	if model.IsLateAt(now, scheduled, s.grace) {
		status = model.CheckinStatusLate
	}

	record := &model.CheckinRecord{
		TaskID:       task.ID,
		UserID:       user.ID,
		FamilyID:     familyID,
		CheckinTime:  now.UTC(),
		CheckinDate:  date,
		Status:       status,
		FaceVerified: faceVerified,
		PhotoPath:    photoPath,
		Location:     model.JSONB(in.Location),
	}
	if scheduled != nil {
		at := scheduled.UTC()
		record.ScheduledTime = &at
	}

	var emotion *model.EmotionRecord
	if result != nil {
		analysis := model.AnalysisText(result.Emotion, result.Confidence)
		detected := result.Emotion
		confidence := result.Confidence
		record.EmotionDetected = &detected
		record.EmotionConfidence = &confidence
		record.EmotionProbabilities = result.Probabilities
		record.AIAnalysis = analysis

		emotion = &model.EmotionRecord{
			UserID:        user.ID,
			FamilyID:      &familyID,
			Emotion:       result.Emotion,
			Confidence:    result.Confidence,
			Probabilities: result.Probabilities,
			PhotoPath:     photoPath,
			AIAnalysis:    analysis,
			FaceVerified:  faceVerified,
			RecordedAt:    now.UTC(),
		}
	}

	if err := s.repos.Checkins.CreateWithEmotion(ctx, record, emotion); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, pkgerrors.AlreadyCheckedIn
		}
		logger.Logger.Error("Failed to persist checkin",
			zap.Int64("task_id", task.ID),
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", pkgerrors.PersistenceFailed, err)
	}

	metrics.RecordCheckin(ctx, string(status), faceVerified)
	logger.Logger.Info("Checkin submitted",
		zap.Int64("record_id", record.ID),
		zap.Int64("task_id", task.ID),
		zap.Int64("user_id", user.ID),
		zap.String("status", string(status)),
		zap.Bool("face_verified", faceVerified),
	)

	outcome := &dto.CheckinOutcome{
		CheckinTime:   record.CheckinTime,
		ScheduledTime: record.ScheduledTime,
		Emotion:       toEmotionResult(result),
		Status:        string(status),
		PhotoPath:     photoPath,
		Analysis:      record.AIAnalysis,
		RecordID:      record.ID,
		FaceVerified:  faceVerified,
	}
	if emotion != nil {
		outcome.EmotionRecordID = &emotion.ID
		s.maybeAlert(ctx, user, task, emotion)
	}
	return outcome, nil
}

func (s *CheckinService) savePhoto(ctx context.Context, key string, img image.Image) (string, error) {
	return savePhoto(ctx, s.photos, key, img)
}

// verifyIdentity 只对已录入人脸的用户调用比对，失败只记警告
func (s *CheckinService) verifyIdentity(ctx context.Context, user *model.User, img image.Image) bool {
	if s.verifier == nil {
		return false
	}

	enrolled := user.FaceRegistered
	if !enrolled {
		n, err := s.repos.Faces.CountByUser(ctx, user.ID)
		if err != nil {
			logger.Logger.Warn("Failed to count face templates", zap.Int64("user_id", user.ID), zap.Error(err))
			return false
		}
		enrolled = n > 0
	}
	if !enrolled {
		return false
	}

	ok, distance, err := s.verifier.Verify(ctx, img, user.ID)
	if err != nil {
		logger.Logger.Warn("Face verification unavailable",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		return false
	}
	logger.Logger.Debug("Face verified",
		zap.Int64("user_id", user.ID),
		zap.Bool("match", ok),
		zap.Float64("distance", distance),
	)
	return ok
}

// classify 表情识别失败不影响打卡
func (s *CheckinService) classify(ctx context.Context, userID int64, img image.Image) *recognition.EmotionResult {
	if s.classifier == nil {
		return nil
	}
	result, err := s.classifier.Classify(ctx, recognition.NormalizeForEmotion(img))
	if err != nil {
		logger.Logger.Warn("Emotion classification unavailable",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	return result
}

// maybeAlert 负面情绪且置信度超过阈值时通知家庭管理员，只记录日志不返回错误
func (s *CheckinService) maybeAlert(ctx context.Context, user *model.User, task *model.CheckinTask, emotion *model.EmotionRecord) {
	threshold := s.alertThreshold
	if task.EmotionThreshold > 0 {
		threshold = task.EmotionThreshold
	}
	if !emotion.IsNegative() || emotion.Confidence <= threshold {
		return
	}

	admin, err := s.repos.Families.AdminOfFamily(ctx, task.FamilyID)
	if err != nil {
		logger.Logger.Warn("No family admin for emotion alert",
			zap.Int64("family_id", task.FamilyID),
			zap.Error(err),
		)
		return
	}

	related := emotion.ID
	n := &model.Notification{
		NotificationType: model.NotificationTypeEmail,
		RecipientID:      admin.ID,
		RecipientEmail:   admin.Email,
		Subject:          fmt.Sprintf("情绪提醒: %s", user.Name()),
		Content: fmt.Sprintf("%s 在打卡「%s」时检测到%s情绪（置信度 %.1f%%），请及时关心。",
			user.Name(), task.TaskName, emotion.Emotion.DisplayName(), emotion.Confidence*100),
		RelatedType: model.RelatedEmotionRecord,
		RelatedID:   &related,
	}
	if err := s.notifications.Enqueue(ctx, n, "checkin_alert"); err != nil {
		logger.Logger.Warn("Failed to enqueue emotion alert",
			zap.Int64("emotion_record_id", emotion.ID),
			zap.Error(err),
		)
		return
	}
	metrics.RecordAnomaly(ctx, "checkin")
}

// ListTasks 当前用户需要完成的任务
func (s *CheckinService) ListTasks(ctx context.Context, userID int64) ([]dto.TaskItem, error) {
	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		return nil, err
	}
	familyID, err := familyOf(user)
	if err != nil {
		return nil, err
	}

	tasks, err := s.repos.Tasks.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	date := utils.DateKey(s.now(), userLocation(user, s.loc))
	checked, err := s.repos.Checkins.CheckedTaskIDs(ctx, user.ID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query today's checkins: %w", err)
	}
	checkedSet := make(map[int64]struct{}, len(checked))
	for _, id := range checked {
		checkedSet[id] = struct{}{}
	}

	mine := make([]model.CheckinTask, 0, len(tasks))
	ids := make([]int64, 0, len(tasks))
	for i := range tasks {
		if tasks[i].Targets(user.ID) {
			mine = append(mine, tasks[i])
			ids = append(ids, tasks[i].ID)
		}
	}

	last, err := s.repos.Checkins.LastCheckins(ctx, user.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query last checkins: %w", err)
	}

	items := make([]dto.TaskItem, 0, len(mine))
	for i := range mine {
		item := toTaskItem(&mine[i])
		_, item.CheckedToday = checkedSet[mine[i].ID]
		if at, ok := last[mine[i].ID]; ok {
			item.LastCheckin = &at
		}
		items = append(items, item)
	}
	return items, nil
}

// ListRecords 打卡记录分页
func (s *CheckinService) ListRecords(ctx context.Context, userID int64, query dto.CheckinRecordQuery) ([]dto.CheckinRecordItem, dto.Page, error) {
	page := repository.Page{Page: query.Page, PageSize: query.PageSize}

	filter := repository.CheckinFilter{
		FromDate: query.From,
		ToDate:   query.To,
		TaskID:   query.TaskID,
	}
	if query.Status != "" {
		status := model.CheckinStatus(query.Status)
		switch status {
		case model.CheckinStatusOnTime, model.CheckinStatusLate, model.CheckinStatusMissed:
		default:
			return nil, dto.Page{}, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "unknown status %q", query.Status)
		}
		filter.Status = status
	}
	for _, d := range []string{query.From, query.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(utils.DateLayout, d); err != nil {
			return nil, dto.Page{}, pkgerrors.WithDetail(pkgerrors.InvalidRequest, "invalid date %q", d)
		}
	}

	records, total, err := s.repos.Checkins.List(ctx, userID, filter, page)
	if err != nil {
		return nil, dto.Page{}, fmt.Errorf("failed to list checkin records: %w", err)
	}

	items := make([]dto.CheckinRecordItem, 0, len(records))
	for i := range records {
		items = append(items, toCheckinRecordItem(&records[i]))
	}
	return items, toPage(page, total), nil
}
