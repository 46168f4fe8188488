package dto

// ========== User / Auth 相关 DTO ==========

// UserProfile 当前用户资料
type UserProfile struct {
	FamilyID           *int64 `json:"family_id,omitempty"`
	Username           string `json:"username"`
	DisplayName        string `json:"display_name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	Timezone           string `json:"timezone"`
	Status             string `json:"status"`
	ID                 int64  `json:"id"`
	FaceEncodingsCount int    `json:"face_encodings_count"`
	FaceRegistered     bool   `json:"face_registered"`
	PhoneVerified      bool   `json:"phone_verified"`
}

// UpdateContactRequest 更新联系方式，用于通知投递
type UpdateContactRequest struct {
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Timezone *string `json:"timezone"`
}

// RefreshTokenRequest 刷新 token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" vd:"len($)>0"`
}

// TokenResponse token 刷新结果
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}
