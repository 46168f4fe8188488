package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// TaskType 打卡任务类型
type TaskType string

const (
	TaskTypeDaily  TaskType = "daily"
	TaskTypeWeekly TaskType = "weekly"
	TaskTypeCustom TaskType = "custom"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeDaily, TaskTypeWeekly, TaskTypeCustom:
		return true
	}
	return false
}

// CheckinStatus 打卡状态
type CheckinStatus string

const (
	CheckinStatusOnTime CheckinStatus = "on_time"
	CheckinStatusLate   CheckinStatus = "late"
	CheckinStatusMissed CheckinStatus = "missed"
)

// ScheduleConfig 打卡时间配置，time 为当天 "HH:MM"，weekday 仅用于周任务（0=周日）
type ScheduleConfig struct {
	Time    string `json:"time,omitempty"`
	Weekday *int   `json:"weekday,omitempty"`
}

func (c ScheduleConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *ScheduleConfig) Scan(value interface{}) error {
	if value == nil {
		*c = ScheduleConfig{}
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, c)
}

// CheckinTask 打卡任务
type CheckinTask struct {
	BaseModel
	TaskName         string         `gorm:"type:varchar(100);not null" json:"task_name"`
	FamilyID         int64          `gorm:"not null;index:idx_checkin_tasks_family_active" json:"family_id"`
	TaskType         TaskType       `gorm:"type:varchar(16);not null" json:"task_type"`
	TargetMembers    Int64List      `gorm:"type:jsonb" json:"target_members"` // 为空表示全部成员
	ScheduleConfig   ScheduleConfig `gorm:"type:jsonb" json:"schedule_config"`
	ReminderConfig   JSONB          `gorm:"type:jsonb" json:"reminder_config,omitempty"`
	EmotionThreshold float64        `gorm:"not null;default:0.7" json:"emotion_threshold"`
	IsActive         bool           `gorm:"not null;index:idx_checkin_tasks_family_active" json:"is_active"`
	CreatedBy        int64          `gorm:"not null" json:"created_by"`
}

// TableName 指定表名
func (CheckinTask) TableName() string {
	return "checkin_tasks"
}

// HasExplicitTargets 是否限定了目标成员
func (t *CheckinTask) HasExplicitTargets() bool {
	return len(t.TargetMembers) > 0
}

// Targets 判断用户是否在任务目标范围内
func (t *CheckinTask) Targets(userID int64) bool {
	return !t.HasExplicitTargets() || t.TargetMembers.Contains(userID)
}

// ScheduledAt 计算 day 当天的计划打卡时间，仅日任务且配置了时间时有效
func (t *CheckinTask) ScheduledAt(day time.Time) (*time.Time, error) {
	if t.TaskType != TaskTypeDaily || t.ScheduleConfig.Time == "" {
		return nil, nil
	}
	h, m, err := parseHourMinute(t.ScheduleConfig.Time)
	if err != nil {
		return nil, err
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
	return &at, nil
}

func parseHourMinute(clock string) (int, int, error) {
	tm, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, err
	}
	return tm.Hour(), tm.Minute(), nil
}

// CheckinRecord 一次打卡提交结果
type CheckinRecord struct {
	BaseModel
	TaskID               int64                `gorm:"not null;uniqueIndex:uk_checkin_task_user_date" json:"task_id"`
	UserID               int64                `gorm:"not null;uniqueIndex:uk_checkin_task_user_date;index:idx_checkin_records_user_time" json:"user_id"`
	FamilyID             int64                `gorm:"not null;index" json:"family_id"`
	CheckinTime          time.Time            `gorm:"not null;index:idx_checkin_records_user_time" json:"checkin_time"`
	CheckinDate          string               `gorm:"type:varchar(10);not null;uniqueIndex:uk_checkin_task_user_date;index" json:"checkin_date"`
	ScheduledTime        *time.Time           `json:"scheduled_time,omitempty"`
	Status               CheckinStatus        `gorm:"type:varchar(16);not null;index" json:"status"`
	FaceVerified         bool                 `gorm:"not null" json:"face_verified"`
	EmotionDetected      *Emotion             `gorm:"type:varchar(16)" json:"emotion_detected,omitempty"`
	EmotionConfidence    *float64             `json:"emotion_confidence,omitempty"`
	EmotionProbabilities EmotionProbabilities `gorm:"type:jsonb" json:"emotion_probabilities,omitempty"`
	PhotoPath            string               `gorm:"type:varchar(255);not null;default:''" json:"photo_path"`
	AIAnalysis           string               `gorm:"type:text" json:"ai_analysis"`
	Location             JSONB                `gorm:"type:jsonb" json:"location,omitempty"`
}

// TableName 指定表名
func (CheckinRecord) TableName() string {
	return "checkin_records"
}

// IsLateAt 超过计划时间 grace 以上才算迟到，恰好等于 grace 仍为准时
func IsLateAt(checkinTime time.Time, scheduled *time.Time, grace time.Duration) bool {
	if scheduled == nil {
		return false
	}
	return checkinTime.After(scheduled.Add(grace))
}
