package repository

import (
	"fmt"
	"os"

	"gorm.io/gen"

	"FamilyWell/internal/model"
	"FamilyWell/pkg/errors"
	"FamilyWell/storage/database"
)

// ========== CheckinRecord 相关查询接口 ==========

// CheckinRecordQuerier 打卡记录报表查询
type CheckinRecordQuerier interface {
	// CountByFamilyAndStatus 统计家庭在日期区间内各状态的打卡数
	//
	// SELECT status, COUNT(*) as count
	// FROM @@table
	// WHERE family_id = @familyID
	//   AND checkin_date >= @fromDate
	//   AND checkin_date <= @toDate
	//   AND deleted_at IS NULL
	// GROUP BY status
	CountByFamilyAndStatus(familyID int64, fromDate, toDate string) ([]gen.M, error)

	// ListByTaskAndDate 某任务某天的全部打卡
	//
	// SELECT * FROM @@table
	// WHERE task_id = @taskID
	//   AND checkin_date = @date
	//   {{if status != ""}}
	//   AND status = @status
	//   {{end}}
	//   AND deleted_at IS NULL
	// ORDER BY checkin_time ASC
	ListByTaskAndDate(taskID int64, date string, status string) ([]*gen.T, error)
}

// ========== EmotionRecord 相关查询接口 ==========

// EmotionRecordQuerier 表情记录报表查询
type EmotionRecordQuerier interface {
	// CountByUserAndEmotion 用户在时间区间内各情绪出现次数
	//
	// SELECT emotion, COUNT(*) as count, AVG(confidence) as avg_confidence
	// FROM @@table
	// WHERE user_id = @userID
	//   AND recorded_at >= @since
	//   AND deleted_at IS NULL
	// GROUP BY emotion
	CountByUserAndEmotion(userID int64, since string) ([]gen.M, error)
}

// ========== Notification 相关查询接口 ==========

// NotificationQuerier 通知运维查询
type NotificationQuerier interface {
	// CountByTypeAndStatus 各渠道各状态的通知数量
	//
	// SELECT notification_type, status, COUNT(*) as count
	// FROM @@table
	// WHERE deleted_at IS NULL
	// GROUP BY notification_type, status
	CountByTypeAndStatus() ([]gen.M, error)

	// ListStalePending 长时间未投递的通知
	//
	// SELECT * FROM @@table
	// WHERE status = 'pending'
	//   AND created_at < NOW() - INTERVAL '1 hour'
	//   AND deleted_at IS NULL
	// ORDER BY created_at ASC
	// LIMIT @limit
	ListStalePending(limit int) ([]*gen.T, error)
}

func Generate() error {
	// Init 内部已执行迁移，确保表存在
	if err := database.Init(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	db := database.DB()
	if db == nil {
		return errors.ErrDatabaseConnectionNil
	}

	g := gen.NewGenerator(gen.Config{
		OutPath:           "./internal/repository/query", // 生成代码的输出路径
		ModelPkgPath:      "FamilyWell/internal/model",
		Mode:              gen.WithDefaultQuery | gen.WithQueryInterface | gen.WithoutContext,
		FieldNullable:     true,
		FieldCoverable:    false,
		FieldSignable:     false,
		FieldWithIndexTag: false,
		FieldWithTypeTag:  true,
	})

	g.UseDB(db)

	g.ApplyBasic(
		&model.Family{},
		&model.User{},
		&model.CheckinTask{},
		&model.CheckinRecord{},
		&model.EmotionRecord{},
		&model.FaceTemplate{},
		&model.Notification{},
	)

	g.ApplyInterface(func(CheckinRecordQuerier) {}, &model.CheckinRecord{})
	g.ApplyInterface(func(EmotionRecordQuerier) {}, &model.EmotionRecord{})
	g.ApplyInterface(func(NotificationQuerier) {}, &model.Notification{})

	g.Execute()

	return nil
}

func RunGenerate() {
	if err := Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate code: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Code generation completed successfully!")
}
