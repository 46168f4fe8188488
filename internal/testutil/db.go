// Package testutil 测试用的内存数据库与数据构造
package testutil

import (
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"FamilyWell/internal/model"
	"FamilyWell/storage/database"
)

// NewDB 每个测试一个独立的内存库，单连接保证同一个库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := database.GormConfig()
	cfg.Logger = gormlogger.Discard

	db, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Fixture 一个家庭、一名管理员与若干成员
type Fixture struct {
	Family  *model.Family
	Admin   *model.User
	Members []*model.User
}

// SeedFamily 创建家庭及成员，成员用户名为 member1..memberN
func SeedFamily(t *testing.T, db *gorm.DB, code string, members int) *Fixture {
	t.Helper()

	family := &model.Family{Name: "家庭" + code, Code: code, MaxMembers: 20, Status: model.FamilyStatusActive}
	require.NoError(t, db.Create(family).Error)

	admin := NewUser(t, db, code+"-admin", model.RoleFamilyAdmin, &family.ID)
	family.AdminID = &admin.ID
	require.NoError(t, db.Save(family).Error)

	fx := &Fixture{Family: family, Admin: admin}
	for i := 1; i <= members; i++ {
		fx.Members = append(fx.Members, NewUser(t, db, fmt.Sprintf("%s-member%d", code, i), model.RoleFamilyMember, &family.ID))
	}
	return fx
}

func NewUser(t *testing.T, db *gorm.DB, username string, role model.UserRole, familyID *int64) *model.User {
	t.Helper()

	user := &model.User{
		Username:    username,
		DisplayName: username,
		Email:       username + "@example.com",
		Role:        role,
		FamilyID:    familyID,
		Timezone:    "Asia/Shanghai",
		Status:      model.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// DailyTask 每日任务，clock 为空时不设置计划时间
func DailyTask(t *testing.T, db *gorm.DB, fx *Fixture, name, clock string, targets ...int64) *model.CheckinTask {
	t.Helper()

	task := &model.CheckinTask{
		TaskName:         name,
		FamilyID:         fx.Family.ID,
		TaskType:         model.TaskTypeDaily,
		TargetMembers:    model.Int64List(targets),
		ScheduleConfig:   model.ScheduleConfig{Time: clock},
		EmotionThreshold: 0.7,
		IsActive:         true,
		CreatedBy:        fx.Admin.ID,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

// Emotion 直接写入一条表情记录
func Emotion(t *testing.T, db *gorm.DB, user *model.User, e model.Emotion, confidence float64, at time.Time) *model.EmotionRecord {
	t.Helper()

	rec := &model.EmotionRecord{
		UserID:     user.ID,
		FamilyID:   user.FamilyID,
		Emotion:    e,
		Confidence: confidence,
		RecordedAt: at.UTC(),
	}
	require.NoError(t, db.Create(rec).Error)
	return rec
}
