package dto

import "time"

// ========== Emotion 相关 DTO ==========

// EmotionDistributionItem 单个情绪的分布
type EmotionDistributionItem struct {
	Emotion       string  `json:"emotion"`
	EmotionName   string  `json:"emotion_name"`
	Count         int     `json:"count"`
	Percentage    float64 `json:"percentage"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// DailyEmotionStat 按观察者本地日期的单日统计
type DailyEmotionStat struct {
	Date            string  `json:"date"`
	DominantEmotion string  `json:"dominant_emotion"`
	Count           int     `json:"count"`
	NegativeCount   int     `json:"negative_count"`
	AvgScore        float64 `json:"avg_score"`
}

// EmotionStatistics 情绪统计
type EmotionStatistics struct {
	Distribution    []EmotionDistributionItem `json:"distribution"`
	Daily           []DailyEmotionStat        `json:"daily_breakdown"`
	DominantEmotion string                    `json:"dominant_emotion,omitempty"`
	WindowDays      int                       `json:"window_days"`
	Total           int                       `json:"total"`
	NegativeCount   int                       `json:"negative_count"`
	NegativeRatio   float64                   `json:"negative_ratio"`
	AvgScore        float64                   `json:"avg_score"`
}

// TrendPoint 趋势中的一天，无记录时 score 为 null
type TrendPoint struct {
	Score *float64 `json:"score"`
	Date  string   `json:"date"`
	Count int      `json:"count"`
}

// EmotionTrend 情绪趋势
type EmotionTrend struct {
	RecentAvg   *float64     `json:"recent_avg"`
	PreviousAvg *float64     `json:"previous_avg"`
	Direction   string       `json:"direction"`
	Series      []TrendPoint `json:"series"`
	Days        int          `json:"days"`
}

// AnalyzeEmotionRequest 单独的表情分析请求
type AnalyzeEmotionRequest struct {
	PhotoBase64 string `json:"photo_base64" form:"photo_base64"`
	Save        bool   `json:"save" form:"save"`
}

// AnalyzeEmotionResponse 单独的表情分析结果
type AnalyzeEmotionResponse struct {
	RecordID  *int64        `json:"record_id,omitempty"`
	Emotion   EmotionResult `json:"emotion"`
	Analysis  string        `json:"analysis"`
	PhotoPath string        `json:"photo_path,omitempty"`
}

// EmotionRecordItem 情绪记录
type EmotionRecordItem struct {
	RecordedAt      time.Time `json:"recorded_at"`
	CheckinRecordID *int64    `json:"checkin_record_id,omitempty"`
	Emotion         string    `json:"emotion"`
	EmotionName     string    `json:"emotion_name"`
	AIAnalysis      string    `json:"ai_analysis"`
	ID              int64     `json:"id"`
	Confidence      float64   `json:"confidence"`
	Score           float64   `json:"score"`
	IsNegative      bool      `json:"is_negative"`
	FaceVerified    bool      `json:"face_verified"`
}

// StatisticsQuery 统计查询参数
type StatisticsQuery struct {
	Scope string `query:"scope"` // self, family
	Days  int    `query:"days"`
}
