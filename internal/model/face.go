package model

import (
	"encoding/binary"
	"errors"
	"math"
)

// FaceTemplate 人脸特征模板，每张注册照片一条
type FaceTemplate struct {
	BaseModel
	UserID       int64    `gorm:"not null;index" json:"user_id"`
	Vector       []byte   `gorm:"not null" json:"-"`                  // float32 小端序
	VectorJSON   Float64s `gorm:"type:jsonb" json:"vector,omitempty"` // 可读副本
	SourcePhoto  string   `gorm:"type:varchar(255);not null;default:''" json:"source_photo"`
	QualityScore float64  `gorm:"not null;default:0" json:"quality_score"`
	IsPrimary    bool     `gorm:"not null" json:"is_primary"`
}

// TableName 指定表名
func (FaceTemplate) TableName() string {
	return "face_templates"
}

var errVectorLength = errors.New("face vector blob length is not a multiple of 4")

// EncodeVector 将特征向量编码为 float32 小端序字节
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector EncodeVector 的逆过程
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errVectorLength
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// NewFaceTemplate 同时填充二进制与 JSON 两份向量
func NewFaceTemplate(userID int64, vec []float32, sourcePhoto string, quality float64) *FaceTemplate {
	mirror := make(Float64s, len(vec))
	for i, v := range vec {
		mirror[i] = float64(v)
	}
	return &FaceTemplate{
		UserID:       userID,
		Vector:       EncodeVector(vec),
		VectorJSON:   mirror,
		SourcePhoto:  sourcePhoto,
		QualityScore: quality,
	}
}
