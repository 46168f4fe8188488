package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Emotion 表情标签
type Emotion string

const (
	EmotionAngry    Emotion = "angry"
	EmotionDisgust  Emotion = "disgust"
	EmotionFear     Emotion = "fear"
	EmotionHappy    Emotion = "happy"
	EmotionSad      Emotion = "sad"
	EmotionSurprise Emotion = "surprise"
	EmotionNeutral  Emotion = "neutral"
)

// AllEmotions 固定的七类标签，顺序即模型输出顺序
var AllEmotions = []Emotion{
	EmotionAngry, EmotionDisgust, EmotionFear, EmotionHappy,
	EmotionSad, EmotionSurprise, EmotionNeutral,
}

var emotionScores = map[Emotion]float64{
	EmotionHappy:    90,
	EmotionSurprise: 85,
	EmotionNeutral:  65,
	EmotionSad:      40,
	EmotionFear:     35,
	EmotionAngry:    20,
	EmotionDisgust:  15,
}

const defaultEmotionScore = 50

var emotionNames = map[Emotion]string{
	EmotionAngry:    "愤怒",
	EmotionDisgust:  "厌恶",
	EmotionFear:     "恐惧",
	EmotionHappy:    "开心",
	EmotionSad:      "悲伤",
	EmotionSurprise: "惊讶",
	EmotionNeutral:  "平静",
}

func (e Emotion) Valid() bool {
	_, ok := emotionScores[e]
	return ok
}

// Score 每种情绪的固定分值（0-100）
func (e Emotion) Score() float64 {
	if s, ok := emotionScores[e]; ok {
		return s
	}
	return defaultEmotionScore
}

// IsNegative 负面情绪集合：angry, disgust, sad, fear
func (e Emotion) IsNegative() bool {
	switch e {
	case EmotionAngry, EmotionDisgust, EmotionSad, EmotionFear:
		return true
	}
	return false
}

func (e Emotion) DisplayName() string {
	if n, ok := emotionNames[e]; ok {
		return n
	}
	return string(e)
}

// EmotionProbabilities 各情绪概率
type EmotionProbabilities map[Emotion]float64

func (p EmotionProbabilities) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[Emotion]float64(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *EmotionProbabilities) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, p)
}

// EmotionRecord 一次表情识别结果，可关联打卡记录
type EmotionRecord struct {
	BaseModel
	UserID          int64                `gorm:"not null;index:idx_emotion_records_user_time" json:"user_id"`
	FamilyID        *int64               `gorm:"index:idx_emotion_records_family_time" json:"family_id,omitempty"`
	CheckinRecordID *int64               `gorm:"index" json:"checkin_record_id,omitempty"`
	Emotion         Emotion              `gorm:"type:varchar(16);not null" json:"emotion"`
	Confidence      float64              `gorm:"not null" json:"confidence"`
	Probabilities   EmotionProbabilities `gorm:"type:jsonb" json:"probabilities"`
	PhotoPath       string               `gorm:"type:varchar(255);not null;default:''" json:"photo_path"`
	AIAnalysis      string               `gorm:"type:text" json:"ai_analysis"`
	FaceVerified    bool                 `gorm:"not null" json:"face_verified"`
	RecordedAt      time.Time            `gorm:"not null;index:idx_emotion_records_user_time;index:idx_emotion_records_family_time" json:"recorded_at"`
}

// TableName 指定表名
func (EmotionRecord) TableName() string {
	return "emotion_records"
}

func (r *EmotionRecord) Score() float64 {
	return r.Emotion.Score()
}

func (r *EmotionRecord) IsNegative() bool {
	return r.Emotion.IsNegative()
}

// AnalysisText 根据情绪与置信度生成的说明文字
func AnalysisText(e Emotion, confidence float64) string {
	pct := fmt.Sprintf("%.1f%%", confidence*100)
	switch e {
	case EmotionHappy:
		return "检测到积极的情绪状态，置信度 " + pct + "。今天看起来心情不错，继续保持！"
	case EmotionSurprise:
		return "检测到惊讶的表情，置信度 " + pct + "。可能遇到了意想不到的事情。"
	case EmotionNeutral:
		return "情绪状态平稳，置信度 " + pct + "。"
	case EmotionSad:
		return "检测到悲伤的情绪，置信度 " + pct + "。建议家人多关心和陪伴。"
	case EmotionFear:
		return "检测到恐惧或不安的情绪，置信度 " + pct + "。建议了解是否遇到困扰。"
	case EmotionAngry:
		return "检测到愤怒的情绪，置信度 " + pct + "。建议适当放松，必要时进行沟通。"
	case EmotionDisgust:
		return "检测到厌恶的情绪，置信度 " + pct + "。建议关注近期的生活状态。"
	default:
		return "情绪识别完成，置信度 " + pct + "。"
	}
}
