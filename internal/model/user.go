package model

// UserStatus 用户状态枚举
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// UserRole 用户角色
type UserRole string

const (
	RoleSuperAdmin   UserRole = "super_admin"
	RoleFamilyAdmin  UserRole = "family_admin"
	RoleFamilyMember UserRole = "family_member"
)

// User 用户模型，账号注册与登录由外部负责
type User struct {
	BaseModel
	Username           string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	DisplayName        string     `gorm:"type:varchar(64);not null;default:''" json:"display_name"`
	Email              string     `gorm:"type:varchar(254);not null;default:''" json:"email"`
	PhoneCipher        []byte     `json:"-"`                                        // 手机号密文，不对外暴露
	PhoneHash          *string    `gorm:"uniqueIndex;type:char(64)" json:"-"`       // 手机号哈希，用于查询
	Role               UserRole   `gorm:"type:varchar(20);not null;default:'family_member'" json:"role"`
	FamilyID           *int64     `gorm:"index" json:"family_id,omitempty"`
	Timezone           string     `gorm:"type:varchar(64);not null;default:'Asia/Shanghai'" json:"timezone"`
	FaceRegistered     bool       `gorm:"not null;default:false" json:"face_registered"`
	FaceEncodingsCount int        `gorm:"not null;default:0" json:"face_encodings_count"`
	Status             UserStatus `gorm:"type:varchar(16);not null;default:'active';index:idx_users_status" json:"status"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Name 展示名，缺省时退回用户名
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

func (u *User) IsFamilyAdmin() bool {
	return u.Role == RoleFamilyAdmin || u.Role == RoleSuperAdmin
}
