package service

import (
	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
)

func toEmotionResult(res *recognition.EmotionResult) *dto.EmotionResult {
	if res == nil {
		return nil
	}
	probs := make(map[string]float64, len(res.Probabilities))
	for e, p := range res.Probabilities {
		probs[string(e)] = p
	}
	return &dto.EmotionResult{
		Probabilities: probs,
		Emotion:       string(res.Emotion),
		EmotionName:   res.Emotion.DisplayName(),
		Confidence:    res.Confidence,
		Score:         res.Emotion.Score(),
		IsNegative:    res.Emotion.IsNegative(),
	}
}

func toTaskItem(task *model.CheckinTask) dto.TaskItem {
	targets := []int64(task.TargetMembers)
	if targets == nil {
		targets = []int64{}
	}
	return dto.TaskItem{
		TaskName:       task.TaskName,
		TaskType:       string(task.TaskType),
		ScheduleTime:   task.ScheduleConfig.Time,
		TargetMembers:  targets,
		ID:             task.ID,
		EmotionAlertAt: task.EmotionThreshold,
		IsActive:       task.IsActive,
	}
}

func toCheckinRecordItem(rec *model.CheckinRecord) dto.CheckinRecordItem {
	item := dto.CheckinRecordItem{
		CheckinTime:       rec.CheckinTime,
		ScheduledTime:     rec.ScheduledTime,
		EmotionConfidence: rec.EmotionConfidence,
		CheckinDate:       rec.CheckinDate,
		Status:            string(rec.Status),
		PhotoPath:         rec.PhotoPath,
		AIAnalysis:        rec.AIAnalysis,
		ID:                rec.ID,
		TaskID:            rec.TaskID,
		FaceVerified:      rec.FaceVerified,
	}
	if rec.EmotionDetected != nil {
		item.EmotionDetected = string(*rec.EmotionDetected)
	}
	return item
}

func toEmotionRecordItem(rec *model.EmotionRecord) dto.EmotionRecordItem {
	return dto.EmotionRecordItem{
		RecordedAt:      rec.RecordedAt,
		CheckinRecordID: rec.CheckinRecordID,
		Emotion:         string(rec.Emotion),
		EmotionName:     rec.Emotion.DisplayName(),
		AIAnalysis:      rec.AIAnalysis,
		ID:              rec.ID,
		Confidence:      rec.Confidence,
		Score:           rec.Score(),
		IsNegative:      rec.IsNegative(),
		FaceVerified:    rec.FaceVerified,
	}
}

func toNotificationItem(n *model.Notification) dto.NotificationItem {
	return dto.NotificationItem{
		CreatedAt:        n.CreatedAt,
		SentAt:           n.SentAt,
		ReadAt:           n.ReadAt,
		RelatedID:        n.RelatedID,
		NotificationType: string(n.NotificationType),
		Subject:          n.Subject,
		Content:          n.Content,
		RelatedType:      n.RelatedType,
		Status:           string(n.Status),
		ID:               n.ID,
	}
}

func toUserProfile(u *model.User) *dto.UserProfile {
	return &dto.UserProfile{
		FamilyID:           u.FamilyID,
		Username:           u.Username,
		DisplayName:        u.Name(),
		Email:              u.Email,
		Role:               string(u.Role),
		Timezone:           u.Timezone,
		Status:             string(u.Status),
		ID:                 u.ID,
		FaceEncodingsCount: u.FaceEncodingsCount,
		FaceRegistered:     u.FaceRegistered,
		PhoneVerified:      u.PhoneHash != nil && *u.PhoneHash != "",
	}
}

func toPage(p repository.Page, total int64) dto.Page {
	p = p.Normalize()
	return dto.Page{Page: p.Page, PageSize: p.PageSize, Total: total}
}
