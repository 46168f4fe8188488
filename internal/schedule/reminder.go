package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/model"
	"FamilyWell/utils"
)

// RunReminders 给每个活跃任务中今天还没打卡的成员发站内提醒
func (s *Sweeper) RunReminders(ctx context.Context, asOf time.Time) (int, error) {
	local := asOf.In(s.loc)
	date := utils.DateKey(asOf, s.loc)

	families, err := s.activeFamilies(ctx)
	if err != nil {
		return 0, err
	}
	tasks, err := s.repos.Tasks.ListActive(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	created := 0
	var errs []error
	for i := range tasks {
		task := &tasks[i]
		if _, ok := families[task.FamilyID]; !ok {
			continue
		}

		remaining, err := s.pendingTargets(ctx, task, asOf)
		if err != nil {
			s.logger.Error("Reminder sweep failed for task", zap.Int64("task_id", task.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("task %d: %w", task.ID, err))
			continue
		}

		batch := make([]*model.Notification, 0, len(remaining))
		keys := make([]string, 0, len(remaining))
		for _, u := range remaining {
			key := fmt.Sprintf("reminder:%d:%d:%s:%02d", task.ID, u.ID, date, local.Hour())
			if !s.claim(ctx, key) {
				continue
			}
			keys = append(keys, key)
			batch = append(batch, reminderFor(task, &u))
		}

		if err := s.notifications.EnqueueBatch(ctx, batch, "reminder"); err != nil {
			s.release(ctx, keys...)
			s.logger.Error("Failed to create reminders", zap.Int64("task_id", task.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("task %d: %w", task.ID, err))
			continue
		}
		created += len(batch)
	}

	s.logger.Info("Reminder sweep finished",
		zap.String("date", date),
		zap.Int("tasks", len(tasks)),
		zap.Int("reminders", created),
	)
	return created, errors.Join(errs...)
}

func reminderFor(task *model.CheckinTask, u *model.User) *model.Notification {
	content := fmt.Sprintf("今天的「%s」还没有打卡，记得完成哦。", task.TaskName)
	if task.ScheduleConfig.Time != "" {
		content = fmt.Sprintf("今天的「%s」（%s）还没有打卡，记得完成哦。", task.TaskName, task.ScheduleConfig.Time)
	}
	related := task.ID
	return &model.Notification{
		NotificationType: model.NotificationTypeInApp,
		RecipientID:      u.ID,
		RecipientEmail:   u.Email,
		Subject:          "打卡提醒: " + task.TaskName,
		Content:          content,
		RelatedType:      model.RelatedCheckinTask,
		RelatedID:        &related,
	}
}

// RunMissedDetection 每个日任务一封邮件汇总今天未打卡的成员，发给家庭管理员；返回未打卡人数
func (s *Sweeper) RunMissedDetection(ctx context.Context, asOf time.Time) (int, error) {
	date := utils.DateKey(asOf, s.loc)

	families, err := s.activeFamilies(ctx)
	if err != nil {
		return 0, err
	}
	tasks, err := s.repos.Tasks.ListActive(ctx, model.TaskTypeDaily)
	if err != nil {
		return 0, fmt.Errorf("failed to list daily tasks: %w", err)
	}

	missing := 0
	var errs []error
	for i := range tasks {
		task := &tasks[i]
		family, ok := families[task.FamilyID]
		if !ok {
			continue
		}

		remaining, err := s.pendingTargets(ctx, task, asOf)
		if err != nil {
			s.logger.Error("Missed detection failed for task", zap.Int64("task_id", task.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("task %d: %w", task.ID, err))
			continue
		}
		if len(remaining) == 0 {
			continue
		}

		admin, err := s.repos.Families.AdminOf(ctx, family)
		if err != nil {
			s.logger.Warn("Family has no admin, missed report dropped",
				zap.Int64("family_id", family.ID),
				zap.Error(err),
			)
			continue
		}

		key := fmt.Sprintf("missed:%d:%s", task.ID, date)
		if !s.claim(ctx, key) {
			continue
		}

		names := make([]string, 0, len(remaining))
		for i := range remaining {
			names = append(names, remaining[i].Name())
		}
		related := task.ID
		n := &model.Notification{
			NotificationType: model.NotificationTypeEmail,
			RecipientID:      admin.ID,
			RecipientEmail:   admin.Email,
			Subject:          fmt.Sprintf("未打卡提醒: %s", task.TaskName),
			Content: fmt.Sprintf("%s 「%s」共有 %d 位成员未打卡：%s。",
				date, task.TaskName, len(names), strings.Join(names, "、")),
			RelatedType: model.RelatedCheckinTask,
			RelatedID:   &related,
		}
		if err := s.notifications.Enqueue(ctx, n, "missed"); err != nil {
			s.release(ctx, key)
			s.logger.Error("Failed to create missed report", zap.Int64("task_id", task.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("task %d: %w", task.ID, err))
			continue
		}
		missing += len(remaining)
	}

	s.logger.Info("Missed checkin sweep finished",
		zap.String("date", date),
		zap.Int("missing", missing),
	)
	return missing, errors.Join(errs...)
}
