package model

// FamilyStatus 家庭状态
type FamilyStatus string

const (
	FamilyStatusActive   FamilyStatus = "active"
	FamilyStatusInactive FamilyStatus = "inactive"
)

// Family 家庭分组，成员管理不在本服务内
type Family struct {
	BaseModel
	Name       string       `gorm:"type:varchar(100);not null" json:"name"`
	Code       string       `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"`
	AdminID    *int64       `gorm:"index" json:"admin_id,omitempty"`
	MaxMembers int          `gorm:"not null;default:20" json:"max_members"`
	Status     FamilyStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
}

// TableName 指定表名
func (Family) TableName() string {
	return "families"
}
