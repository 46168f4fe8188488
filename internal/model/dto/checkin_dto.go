package dto

import "time"

// ========== CheckIn 相关 DTO ==========

// EmotionResult 表情识别结果
type EmotionResult struct {
	Probabilities map[string]float64 `json:"probabilities"`
	Emotion       string             `json:"emotion"`
	EmotionName   string             `json:"emotion_name"`
	Confidence    float64            `json:"confidence"`
	Score         float64            `json:"score"`
	IsNegative    bool               `json:"is_negative"`
}

// SubmitCheckinRequest 打卡提交请求，照片可走 multipart 的 photo 字段
type SubmitCheckinRequest struct {
	Location    map[string]interface{} `json:"location"`
	PhotoBase64 string                 `json:"photo_base64" form:"photo_base64"`
	TaskID      int64                  `json:"task_id" form:"task_id"`
}

// CheckinOutcome 打卡结果
type CheckinOutcome struct {
	CheckinTime     time.Time      `json:"checkin_time"`
	ScheduledTime   *time.Time     `json:"scheduled_time,omitempty"`
	EmotionRecordID *int64         `json:"emotion_record_id,omitempty"`
	Emotion         *EmotionResult `json:"emotion"`
	Status          string         `json:"status"`
	PhotoPath       string         `json:"photo_path"`
	Analysis        string         `json:"analysis,omitempty"`
	RecordID        int64          `json:"record_id"`
	FaceVerified    bool           `json:"face_verified"`
}

// TaskItem 任务列表项
type TaskItem struct {
	LastCheckin    *time.Time `json:"last_checkin,omitempty"`
	TaskName       string     `json:"task_name"`
	TaskType       string     `json:"task_type"`
	ScheduleTime   string     `json:"schedule_time,omitempty"`
	TargetMembers  []int64    `json:"target_members"`
	ID             int64      `json:"id"`
	EmotionAlertAt float64    `json:"emotion_threshold"`
	IsActive       bool       `json:"is_active"`
	CheckedToday   bool       `json:"checked_today"`
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Weekday          *int    `json:"weekday"`
	TaskName         string  `json:"task_name" vd:"len($)>0"`
	TaskType         string  `json:"task_type" vd:"len($)>0"`
	ScheduleTime     string  `json:"schedule_time"`
	TargetMembers    []int64 `json:"target_members"`
	EmotionThreshold float64 `json:"emotion_threshold"`
}

// UpdateTaskRequest 更新任务请求
type UpdateTaskRequest struct {
	TaskName         *string  `json:"task_name"`
	ScheduleTime     *string  `json:"schedule_time"`
	Weekday          *int     `json:"weekday"`
	TargetMembers    *[]int64 `json:"target_members"`
	EmotionThreshold *float64 `json:"emotion_threshold"`
	IsActive         *bool    `json:"is_active"`
}

// CheckinRecordQuery 打卡记录查询参数
type CheckinRecordQuery struct {
	Status   string `query:"status"`
	From     string `query:"from"`
	To       string `query:"to"`
	TaskID   int64  `query:"task_id"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// CheckinRecordItem 打卡记录
type CheckinRecordItem struct {
	CheckinTime       time.Time  `json:"checkin_time"`
	ScheduledTime     *time.Time `json:"scheduled_time,omitempty"`
	EmotionConfidence *float64   `json:"emotion_confidence,omitempty"`
	EmotionDetected   string     `json:"emotion_detected,omitempty"`
	CheckinDate       string     `json:"checkin_date"`
	Status            string     `json:"status"`
	PhotoPath         string     `json:"photo_path"`
	AIAnalysis        string     `json:"ai_analysis,omitempty"`
	ID                int64      `json:"id"`
	TaskID            int64      `json:"task_id"`
	FaceVerified      bool       `json:"face_verified"`
}

// CheckinStatistics 打卡统计
type CheckinStatistics struct {
	WindowDays int     `json:"window_days"`
	Total      int     `json:"total"`
	OnTime     int     `json:"on_time"`
	Late       int     `json:"late"`
	Missed     int     `json:"missed"`
	Rate       float64 `json:"rate"`
}

// Page 分页元数据
type Page struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}
