package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/internal/model/dto"
	pkgerrors "FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/utils"
)

const (
	maxTaskNameLength       = 100
	defaultEmotionThreshold = 0.7
)

// requireAdmin 只有家庭管理员可以维护任务
func (s *CheckinService) requireAdmin(ctx context.Context, userID int64) (*model.User, int64, error) {
	user, err := loadUser(ctx, s.repos, userID)
	if err != nil {
		return nil, 0, err
	}
	familyID, err := familyOf(user)
	if err != nil {
		return nil, 0, err
	}
	if !user.IsFamilyAdmin() {
		return nil, 0, pkgerrors.Forbidden
	}
	return user, familyID, nil
}

// CreateTask 管理员创建打卡任务
func (s *CheckinService) CreateTask(ctx context.Context, userID int64, req *dto.CreateTaskRequest) (*dto.TaskItem, error) {
	admin, familyID, err := s.requireAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}

	task := &model.CheckinTask{
		FamilyID:         familyID,
		TaskType:         model.TaskType(req.TaskType),
		EmotionThreshold: defaultEmotionThreshold,
		IsActive:         true,
		CreatedBy:        admin.ID,
	}
	if !task.TaskType.Valid() {
		return nil, pkgerrors.WithDetail(pkgerrors.InvalidTaskConfig, "unknown task type %q", req.TaskType)
	}
	if err := applyTaskName(task, req.TaskName); err != nil {
		return nil, err
	}
	if err := applySchedule(task, req.ScheduleTime, req.Weekday); err != nil {
		return nil, err
	}
	if req.EmotionThreshold != 0 {
		if err := applyThreshold(task, req.EmotionThreshold); err != nil {
			return nil, err
		}
	}
	if err := s.applyTargets(ctx, task, req.TargetMembers); err != nil {
		return nil, err
	}

	if err := s.repos.Tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.Logger.Info("Checkin task created",
		zap.Int64("task_id", task.ID),
		zap.Int64("family_id", familyID),
		zap.String("type", string(task.TaskType)),
	)

	item := toTaskItem(task)
	return &item, nil
}

// UpdateTask 管理员修改任务，只更新请求中出现的字段
func (s *CheckinService) UpdateTask(ctx context.Context, userID, taskID int64, req *dto.UpdateTaskRequest) (*dto.TaskItem, error) {
	_, familyID, err := s.requireAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}

	task, err := s.repos.Tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.TaskNotFound
		}
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	if task.FamilyID != familyID {
		return nil, pkgerrors.TaskNotFound
	}

	if req.TaskName != nil {
		if err := applyTaskName(task, *req.TaskName); err != nil {
			return nil, err
		}
	}
	if req.ScheduleTime != nil || req.Weekday != nil {
		clock := task.ScheduleConfig.Time
		if req.ScheduleTime != nil {
			clock = *req.ScheduleTime
		}
		weekday := task.ScheduleConfig.Weekday
		if req.Weekday != nil {
			weekday = req.Weekday
		}
		if err := applySchedule(task, clock, weekday); err != nil {
			return nil, err
		}
	}
	if req.EmotionThreshold != nil {
		if err := applyThreshold(task, *req.EmotionThreshold); err != nil {
			return nil, err
		}
	}
	if req.TargetMembers != nil {
		if err := s.applyTargets(ctx, task, *req.TargetMembers); err != nil {
			return nil, err
		}
	}
	if req.IsActive != nil {
		task.IsActive = *req.IsActive
	}

	if err := s.repos.Tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	item := toTaskItem(task)
	return &item, nil
}

func applyTaskName(task *model.CheckinTask, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxTaskNameLength {
		return pkgerrors.WithDetail(pkgerrors.InvalidTaskConfig, "task_name must be 1-%d characters", maxTaskNameLength)
	}
	task.TaskName = name
	return nil
}

// applySchedule 时间统一存为 HH:MM，weekday 只对周任务有意义
func applySchedule(task *model.CheckinTask, clock string, weekday *int) error {
	cfg := model.ScheduleConfig{}

	clock = strings.TrimSpace(clock)
	if clock != "" {
		h, m, _, err := utils.ParseClock(clock)
		if err != nil {
			return pkgerrors.WithDetail(pkgerrors.InvalidTaskConfig, "schedule_time must be HH:MM")
		}
		cfg.Time = fmt.Sprintf("%02d:%02d", h, m)
	}

	if weekday != nil {
		if task.TaskType != model.TaskTypeWeekly {
			return pkgerrors.WithDetail(pkgerrors.InvalidTaskConfig, "weekday is only valid for weekly tasks")
		}
		if *weekday < 0 || *weekday > 6 {
			return pkgerrors.WithDetail(pkgerrors.InvalidTaskConfig, "weekday must be 0-6")
		}
		wd := *weekday
		cfg.Weekday = &wd
	}

	task.ScheduleConfig = cfg
	return nil
}

func applyThreshold(task *model.CheckinTask, threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return pkgerrors.WithDetail(pkgerrors.InvalidTaskConfig, "emotion_threshold must be in (0, 1]")
	}
	task.EmotionThreshold = threshold
	return nil
}

// applyTargets 目标成员必须是本家庭的活跃用户，空列表表示全部成员
func (s *CheckinService) applyTargets(ctx context.Context, task *model.CheckinTask, targets []int64) error {
	seen := make(map[int64]struct{}, len(targets))
	ids := make([]int64, 0, len(targets))
	for _, id := range targets {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		members, err := s.repos.Users.ListActiveInFamily(ctx, task.FamilyID, ids)
		if err != nil {
			return fmt.Errorf("failed to query target members: %w", err)
		}
		if len(members) != len(ids) {
			return pkgerrors.WithDetail(pkgerrors.InvalidTaskConfig, "target_members must be active members of the family")
		}
	}

	task.TargetMembers = model.Int64List(ids)
	return nil
}
