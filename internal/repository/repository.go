package repository

import (
	"gorm.io/gorm"
)

// Repositories 聚合各实体仓储，service 层通过它访问数据库
type Repositories struct {
	db            *gorm.DB
	Users         *UserRepository
	Families      *FamilyRepository
	Tasks         *TaskRepository
	Checkins      *CheckinRepository
	Emotions      *EmotionRepository
	Faces         *FaceRepository
	Notifications *NotificationRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Users:         &UserRepository{db: db},
		Families:      &FamilyRepository{db: db},
		Tasks:         &TaskRepository{db: db},
		Checkins:      &CheckinRepository{db: db},
		Emotions:      &EmotionRepository{db: db},
		Faces:         &FaceRepository{db: db},
		Notifications: &NotificationRepository{db: db},
	}
}

// DB 返回底层连接，用于跨仓储事务
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Page 分页参数
type Page struct {
	Page     int
	PageSize int
}

// Normalize 页码从 1 开始，每页默认 20 条，最多 100 条
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}
