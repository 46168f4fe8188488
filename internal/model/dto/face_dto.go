package dto

// ========== Face 相关 DTO ==========

// RegisterFaceRequest 人脸注册，JSON 方式提交 base64 图片
type RegisterFaceRequest struct {
	Photos []string `json:"photos"`
}

// RegisterFaceResponse 人脸注册结果
type RegisterFaceResponse struct {
	Failed         []string `json:"failed,omitempty"`
	Registered     int      `json:"registered"`
	TotalTemplates int      `json:"total_templates"`
}

// VerifyFaceRequest 人脸验证
type VerifyFaceRequest struct {
	PhotoBase64 string `json:"photo_base64" form:"photo_base64"`
}

// VerifyFaceResponse 人脸验证结果
type VerifyFaceResponse struct {
	RecognizedUserID *int64  `json:"recognized_user_id,omitempty"`
	Distance         float64 `json:"distance"`
	Verified         bool    `json:"verified"`
	IsCurrentUser    bool    `json:"is_current_user"`
}
